// Package models maps configured model names to model factories.
package models

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/solariq/cmd/forecaster/config"
	"github.com/HatiCode/solariq/pkg/models"
)

// New returns a factory for the named model of series. Each call of the
// factory yields a fresh, untrained instance. BYOM instances share one HTTP
// client.
func New(name, series string, cfg *config.Config, logger *slog.Logger) (models.Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch name {
	case "seasonal":
		logger.Info("initializing seasonal model", "series", series)
		return func() models.Model { return models.NewSeasonalModel(series) }, nil

	case "autoregressive":
		logger.Info("initializing autoregressive model", "series", series, "lags", cfg.Lags)
		lags := cfg.Lags
		return func() models.Model { return models.NewAutoregressiveModel(series, lags) }, nil

	case "byom":
		if cfg.BYOMURL == "" {
			return nil, fmt.Errorf("%s: byom-url is required for the byom model", series)
		}
		logger.Info("initializing BYOM model", "series", series, "url", cfg.BYOMURL)
		url := cfg.BYOMURL
		client := models.NewBYOMClient()
		return func() models.Model { return models.NewBYOMModelWithClient(url, series, nil, client) }, nil

	default:
		return nil, fmt.Errorf("%w: %q (must be seasonal, autoregressive, or byom)", models.ErrUnknownModel, name)
	}
}
