// Package config loads destination instances from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dukex/courier/pkg/models"
	"github.com/dukex/courier/pkg/registry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrDuplicateInstance = errors.New("duplicate instance id")

// InstancesFile represents the structure of the instances.yaml file.
type InstancesFile struct {
	Instances []InstanceFile `yaml:"instances" validate:"dive"`
}

// InstanceFile represents a destination instance in the YAML file.
type InstanceFile struct {
	ID            string             `yaml:"id"            validate:"required"`
	Destination   string             `yaml:"destination"   validate:"required"`
	Settings      map[string]any     `yaml:"settings"`
	Subscriptions []SubscriptionFile `yaml:"subscriptions" validate:"required,min=1,dive"`
}

type SubscriptionFile struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	PartnerAction string         `yaml:"partnerAction" validate:"required"`
	Subscribe     string         `yaml:"subscribe"     validate:"required"`
	Mapping       map[string]any `yaml:"mapping"`
}

// Instance is a configured destination together with the settings blob every
// delivery to it carries.
type Instance struct {
	ID          string
	Destination string
	Settings    models.Settings
}

// LoadInstances loads destination instances from a YAML file.
func LoadInstances(filepath string) (map[string]Instance, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	return ParseInstances(data)
}

func ParseInstances(data []byte) (map[string]Instance, error) {
	var file InstancesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid instances config: %w", err)
	}

	instances := make(map[string]Instance, len(file.Instances))

	for _, item := range file.Instances {
		if _, err := registry.ParseSlug(item.ID); err != nil {
			return nil, fmt.Errorf("instance %q: %w", item.ID, err)
		}

		if _, exists := instances[item.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, item.ID)
		}

		instances[item.ID] = Instance{
			ID:          item.ID,
			Destination: item.Destination,
			Settings:    item.settings(),
		}
	}

	return instances, nil
}

func (i InstanceFile) settings() models.Settings {
	out := models.Settings{}
	for key, value := range i.Settings {
		out[key] = value
	}

	subscriptions := make([]any, len(i.Subscriptions))
	for n, sub := range i.Subscriptions {
		subscriptions[n] = map[string]any{
			"id":            sub.ID,
			"name":          sub.Name,
			"partnerAction": sub.PartnerAction,
			"subscribe":     sub.Subscribe,
			"mapping":       sub.Mapping,
		}
	}

	out[models.SubscriptionsKey] = subscriptions

	return out
}
