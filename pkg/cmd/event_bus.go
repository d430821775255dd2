package cmd

import (
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/courier/pkg/channels/gochannel"
	"github.com/dukex/courier/pkg/channels/kafka"
	"github.com/dukex/courier/pkg/eventbus"
	"github.com/dukex/courier/pkg/log"
)

func NewEventBus(provider string, brokers string, serviceName string, logger *slog.Logger) eventbus.EventBus {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		sarama.Logger = log.NewPrintLogger("sarama").WithField("service", serviceName)

		pub, sub, err := kafka.CreateChannel(adapter, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger)
	case "gochannel", "memory":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
