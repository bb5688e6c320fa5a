package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdougie/motionctrl/internal/conditioning"
	"github.com/bdougie/motionctrl/internal/config"
	"github.com/bdougie/motionctrl/internal/frames"
	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/models"
	"github.com/bdougie/motionctrl/internal/overlap"
	"github.com/bdougie/motionctrl/internal/storage"
)

// Pipeline runs load, conditioning, sampling and composition in one call
type Pipeline struct {
	loader     *Loader
	store      storage.Store
	settings   config.Settings
	compositor *frames.Compositor
	logger     *slog.Logger
}

// NewPipeline creates a one-shot pipeline. store may be nil, in which case chained
// calls blend against an empty continuation and nothing is persisted.
func NewPipeline(loader *Loader, store storage.Store, settings config.Settings, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		loader:     loader,
		store:      store,
		settings:   settings,
		compositor: frames.NewCompositor(logger),
		logger:     logger,
	}
}

// Run generates one clip for req and returns the composed frames
func (p *Pipeline) Run(ctx context.Context, req models.GenerationRequest) (*frames.Batch, error) {
	mode := conditioning.ModeBoth
	if strings.TrimSpace(req.Mode) != "" {
		var err error
		if mode, err = conditioning.ParseMode(req.Mode); err != nil {
			return nil, err
		}
	}
	if err := overlap.CheckOverlap(req.Overlap); err != nil {
		return nil, err
	}

	camera, err := parseChannel("camera", req.Camera)
	if err != nil {
		return nil, err
	}
	trajectory, err := parseChannel("trajectory", req.Trajectory)
	if err != nil {
		return nil, err
	}

	handle, err := p.loader.Load(ctx, LoadRequest{
		Checkpoint: p.settings.CheckpointPath,
		Config:     p.settings.ModelConfigPath,
		Frames:     req.Frames,
	})
	if err != nil {
		return nil, err
	}

	var state *overlap.Continuation
	if req.Overlap > 0 && p.store != nil {
		if state, err = p.store.Load(ctx); err != nil {
			return nil, fmt.Errorf("failed to load continuation: %w", err)
		}
	}

	height, width := frameSize(p.settings, handle.Config)
	builder := conditioning.NewBuilder(handle.Model, nil, p.logger)
	bundle, err := builder.Build(ctx, conditioning.Request{
		Prompt:     req.Prompt,
		Mode:       mode,
		Camera:     camera,
		Trajectory: trajectory,
		Height:     height,
		Width:      width,
		Overlap:    req.Overlap,
	}, state)
	if err != nil {
		return nil, err
	}

	opts := DefaultOptions()
	if req.Steps > 0 {
		opts.Steps = req.Steps
	}
	opts.Seed = req.Seed
	if req.Samples > 0 {
		opts.Samples = req.Samples
	}
	decoded, err := NewDriver(handle, p.logger).Sample(ctx, bundle, opts)
	if err != nil {
		return nil, err
	}

	if req.Overlap > 0 && p.store != nil {
		if err := p.store.Save(ctx, bundle.Continuation); err != nil {
			return nil, fmt.Errorf("failed to save continuation: %w", err)
		}
	}

	batch, err := p.compositor.Compose(decoded, frames.Overlay{
		Trajectory:     bundle.TrajectoryPoints(),
		Poses:          bundle.Poses(),
		DrawTrajectory: req.DrawTrajectory,
		DrawCamera:     req.DrawCamera,
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("generated clip",
		"mode", mode,
		"frames", batch.Len(),
		"size", fmt.Sprintf("%dx%d", batch.Width(), batch.Height()),
		"overlap", req.Overlap)
	return batch, nil
}

// frameSize picks the output size: explicit settings first, then the model's latent
// image size scaled to pixels, then the package defaults
func frameSize(s config.Settings, cfg *config.ModelConfig) (int, int) {
	h, w := s.Height, s.Width
	if cfg != nil {
		if h <= 0 {
			h = cfg.ImageSize[0] * conditioning.LatentFactor
		}
		if w <= 0 {
			w = cfg.ImageSize[1] * conditioning.LatentFactor
		}
	}
	if h <= 0 {
		h = config.DefaultHeight
	}
	if w <= 0 {
		w = config.DefaultWidth
	}
	return h, w
}

// parseChannel decodes a JSON keyframe list; a blank string means the channel is absent
func parseChannel(name, s string) (keyframes.Keyframes, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	kf, err := keyframes.ParseKeyframes(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return kf, nil
}
