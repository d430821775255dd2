// Package gochannel provides the in-memory event bus transport used by tests and single-process setups.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const bufferSize = 1000

// CreateChannel returns one GoChannel acting as both publisher and subscriber.
// Messages published while nothing is subscribed are dropped.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: bufferSize,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
