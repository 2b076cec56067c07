package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/solariq/pkg/modelstore"
	"github.com/HatiCode/solariq/pkg/series"
)

// FittedModel is the envelope persisted in the model store. History is the
// cumulative training table, so every training call sees at least as much
// data as the previous one.
type FittedModel struct {
	Key       string          `json:"key"`
	Model     string          `json:"model"`
	Version   int             `json:"version"`
	TrainedAt time.Time       `json:"trained_at"`
	History   FeatureFrame    `json:"history"`
	State     json.RawMessage `json:"state"`

	instance Model
}

// LastDate returns the final training date.
func (fm *FittedModel) LastDate() time.Time { return fm.History.LastDate() }

// Rows returns the number of training rows.
func (fm *FittedModel) Rows() int { return fm.History.Len() }

// Trainer wraps one Model for one series key. TrainOrUpdate re-fits the
// model on the union of its persisted history and the new rows, under an
// exclusive per-key lock, and saves the result only on success.
type Trainer struct {
	key        string
	factory    Factory
	store      modelstore.Store
	locker     modelstore.Locker
	minSamples int
	logger     *slog.Logger
	now        func() time.Time
}

// NewTrainer creates a Trainer. A nil locker disables locking.
func NewTrainer(key string, factory Factory, store modelstore.Store, locker modelstore.Locker, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		key:        key,
		factory:    factory,
		store:      store,
		locker:     locker,
		minSamples: 2,
		logger:     logger,
		now:        time.Now,
	}
}

// WithMinSamples raises the training floor above the model's own minimum.
func (t *Trainer) WithMinSamples(n int) *Trainer {
	if n > 0 {
		t.minSamples = n
	}
	return t
}

// Key returns the series key.
func (t *Trainer) Key() string { return t.key }

// ModelName returns the wrapped model's identifier.
func (t *Trainer) ModelName() string { return t.factory().Name() }

// TrainOrUpdate fits the model on the union of the stored history and frame
// and persists the new state. frame must be built for this trainer's series.
//
// Returns *TrainingError when the model cannot be fit; nothing is saved in
// that case.
func (t *Trainer) TrainOrUpdate(ctx context.Context, frame FeatureFrame) (*FittedModel, error) {
	if err := modelstore.ValidateKey(t.key); err != nil {
		return nil, err
	}

	if t.locker != nil {
		unlock, err := t.locker.Lock(ctx, t.key)
		if err != nil {
			return nil, fmt.Errorf("lock model %q: %w", t.key, err)
		}
		defer unlock()
	}

	model := t.factory()
	history := frame
	version := 0

	prev, found, err := t.LoadModel(ctx)
	if err != nil {
		return nil, err
	}
	if found && prev.Model != model.Name() {
		t.logger.Warn("discarding stored state of a different model",
			"series", t.key, "stored", prev.Model, "configured", model.Name())
		found = false
	}
	if found {
		history = prev.History.Union(frame)
		version = prev.Version
	}

	projected, err := history.Select(model.Features())
	if err != nil && found {
		// stored rows predate the current feature layout (e.g. lag count changed)
		t.logger.Warn("stored history incompatible with model features, retraining on current rows",
			"series", t.key, "error", err)
		history = frame
		projected, err = frame.Select(model.Features())
	}
	if err != nil {
		return nil, &TrainingError{Key: t.key, Model: model.Name(), Rows: frame.Len(), Err: err}
	}

	required := max(2, model.MinSamples(), t.minSamples)
	if projected.Len() < required {
		return nil, &TrainingError{Key: t.key, Model: model.Name(), Rows: projected.Len(), Required: required}
	}

	start := time.Now()
	if err := model.Train(ctx, projected); err != nil {
		return nil, &TrainingError{Key: t.key, Model: model.Name(), Rows: projected.Len(), Required: required, Err: err}
	}

	state, err := model.State()
	if err != nil {
		return nil, &TrainingError{Key: t.key, Model: model.Name(), Rows: projected.Len(), Required: required, Err: err}
	}

	fm := &FittedModel{
		Key:       t.key,
		Model:     model.Name(),
		Version:   version + 1,
		TrainedAt: t.now().UTC(),
		History:   history,
		State:     state,
		instance:  model,
	}

	blob, err := json.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode model %q: %w", t.key, err)
	}
	if err := t.store.Save(ctx, t.key, blob); err != nil {
		return nil, fmt.Errorf("save model %q: %w", t.key, err)
	}

	t.logger.Info("model trained",
		"series", t.key,
		"model", fm.Model,
		"version", fm.Version,
		"rows", projected.Len(),
		"new_rows", frame.Len(),
		"last_date", fm.LastDate().Format(series.DateLayout),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return fm, nil
}

// LoadModel returns the stored FittedModel. found is false on cold start or
// when the stored blob cannot be decoded.
func (t *Trainer) LoadModel(ctx context.Context) (*FittedModel, bool, error) {
	blob, found, err := t.store.Load(ctx, t.key)
	if err != nil {
		return nil, false, fmt.Errorf("load model %q: %w", t.key, err)
	}
	if !found {
		return nil, false, nil
	}

	var fm FittedModel
	if err := json.Unmarshal(blob, &fm); err != nil {
		t.logger.Warn("ignoring undecodable model state", "series", t.key, "error", err)
		return nil, false, nil
	}
	return &fm, true, nil
}

// Forecast predicts horizonDays days after fm's last training date. A
// FittedModel decoded from storage is restored into a fresh model instance
// first.
func (t *Trainer) Forecast(ctx context.Context, fm *FittedModel, horizonDays int) (Forecast, error) {
	if fm == nil {
		return Forecast{}, errors.New("forecast: fitted model is nil")
	}
	if horizonDays <= 0 {
		return Forecast{Metric: fm.Key, Points: []series.TimePoint{}}, nil
	}

	if fm.instance == nil {
		m := t.factory()
		if m.Name() != fm.Model {
			return Forecast{}, fmt.Errorf("forecast: stored model %q does not match configured %q", fm.Model, m.Name())
		}
		if err := m.Restore(fm.State); err != nil {
			return Forecast{}, fmt.Errorf("forecast: restore %q: %w", fm.Key, err)
		}
		fm.instance = m
	}

	return fm.instance.Predict(ctx, horizonDays)
}
