// Package generator loads the network and drives chained, overlapped sampling.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bdougie/motionctrl/internal/config"
	"github.com/bdougie/motionctrl/internal/model"
	"github.com/bdougie/motionctrl/internal/model/preview"
)

var ErrCheckpointNotFound = errors.New("checkpoint not found")

// FactoryFor returns the model factory registered for a backend name
func FactoryFor(backend string) (model.Factory, error) {
	switch backend {
	case "", config.DefaultBackend:
		return preview.Factory{}, nil
	}
	return nil, fmt.Errorf("unknown model backend '%s'", backend)
}

// LoadRequest names the weights and architecture to instantiate
type LoadRequest struct {
	Checkpoint string
	Config     string
	Frames     int
}

// Loader instantiates models through a backend factory
type Loader struct {
	factory model.Factory
	logger  *slog.Logger
}

// NewLoader creates a loader for factory
func NewLoader(factory model.Factory, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{factory: factory, logger: logger}
}

// Load checks the checkpoint, reads the model config with its temporal length forced
// to req.Frames and instantiates the network with its sampler
func (l *Loader) Load(ctx context.Context, req LoadRequest) (*model.Handle, error) {
	if _, err := os.Stat(req.Checkpoint); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", ErrCheckpointNotFound, req.Checkpoint)
		}
		return nil, fmt.Errorf("failed to stat checkpoint '%s': %w", req.Checkpoint, err)
	}

	frames := req.Frames
	if frames <= 0 {
		frames = config.DefaultFrames
	}
	cfg, err := config.LoadModelConfig(req.Config, frames)
	if err != nil {
		return nil, err
	}

	l.logger.Info("loading checkpoint",
		"path", req.Checkpoint,
		"target", cfg.Target,
		"frames", cfg.TemporalLength)
	handle, err := l.factory.Instantiate(ctx, cfg, req.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate model: %w", err)
	}
	if handle == nil || handle.Model == nil || handle.Sampler == nil {
		return nil, errors.New("model factory returned an incomplete handle")
	}
	handle.Config = cfg
	l.logger.Debug("model ready",
		"channels", handle.Model.Channels(),
		"temporal_length", handle.Model.TemporalLength())
	return handle, nil
}
