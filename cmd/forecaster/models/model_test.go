package models

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/HatiCode/solariq/cmd/forecaster/config"
	"github.com/HatiCode/solariq/pkg/models"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Lags: 4, BYOMURL: "http://byom:8082"}

	tests := []struct {
		name     string
		wantName string
		features int
	}{
		{name: "seasonal", wantName: "seasonal", features: 3},
		{name: "autoregressive", wantName: "autoregressive", features: 4},
		{name: "byom", wantName: "byom", features: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := New(tt.name, "solar", cfg, logger)
			if err != nil {
				t.Fatalf("New(%q) failed: %v", tt.name, err)
			}
			a, b := factory(), factory()
			if a == b {
				t.Error("factory should return fresh instances")
			}
			if a.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", a.Name(), tt.wantName)
			}
			if len(a.Features()) != tt.features {
				t.Errorf("Features() = %v, want %d columns", a.Features(), tt.features)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New("prophet", "solar", &config.Config{}, nil); !errors.Is(err, models.ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
	if _, err := New("byom", "load", &config.Config{}, nil); err == nil {
		t.Error("expected error for byom without url")
	}
}

func TestNew_BYOMSharesClient(t *testing.T) {
	factory, err := New("byom", "solar", &config.Config{BYOMURL: "http://byom:8082"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	a, ok := factory().(*models.BYOMModel)
	if !ok {
		t.Fatal("expected *models.BYOMModel")
	}
	b := factory().(*models.BYOMModel)
	if a.HTTPClient() != b.HTTPClient() {
		t.Error("factory instances should share one HTTP client")
	}
}
