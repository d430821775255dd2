// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/courier/pkg/destination"
	"github.com/dukex/courier/pkg/destinations/logger"
	"github.com/dukex/courier/pkg/destinations/webhook"
	"github.com/dukex/courier/pkg/registry"
)

// Catalog resolves destinations by slug.
type Catalog = registry.Registry[*destination.Destination]

func nativeDefinitions(log *slog.Logger) []destination.Definition {
	return []destination.Definition{
		webhook.Definition(),
		webhook.OAuthDefinition(),
		logger.Definition(log.With("module", "logger_destination")),
	}
}

// NewCatalog builds every native destination and registers it under its slug.
func NewCatalog(log *slog.Logger, httpClient *http.Client) (*Catalog, error) {
	catalog := registry.New[*destination.Destination](log)

	for _, def := range nativeDefinitions(log) {
		d, err := destination.New(def, destination.Dependencies{HTTPClient: httpClient, Logger: log})
		if err != nil {
			return nil, fmt.Errorf("failed to build destination %s: %w", def.Name, err)
		}

		err = catalog.Register(d.Slug(), d)
		if err != nil {
			return nil, err
		}
	}

	return catalog, nil
}
