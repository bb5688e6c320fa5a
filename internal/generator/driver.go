package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/bdougie/motionctrl/internal/conditioning"
	"github.com/bdougie/motionctrl/internal/config"
	"github.com/bdougie/motionctrl/internal/model"
	"github.com/bdougie/motionctrl/internal/overlap"
	"github.com/bdougie/motionctrl/internal/tensor"
)

const (
	DefaultGuidanceScale = 7.5
	DefaultEta           = 1.0
	DefaultCondT         = 800
	maxSamples           = 4
)

// Options tune one sampling call
type Options struct {
	Steps   int
	Seed    int64
	Samples int // variants, clamped to [1, 4]

	GuidanceScale         float64
	TemporalGuidanceScale *float64
	Eta                   float64
	CondT                 int
}

// DefaultOptions returns the sampling defaults of the MotionCtrl nodes
func DefaultOptions() Options {
	return Options{
		Steps:         config.DefaultSteps,
		Seed:          config.DefaultSeed,
		Samples:       1,
		GuidanceScale: DefaultGuidanceScale,
		Eta:           DefaultEta,
		CondT:         DefaultCondT,
	}
}

// Driver runs the sampler for a conditioning bundle and decodes the result
type Driver struct {
	handle *model.Handle
	logger *slog.Logger
}

// NewDriver creates a driver for a loaded model
func NewDriver(handle *model.Handle, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{handle: handle, logger: logger}
}

// Sample draws opts.Samples variants and returns them decoded as (n, 3, T, H, W) in [-1, 1].
// When the bundle is chained (Overlap > 0) the starting latents continue the previous
// clip and the final intermediates are captured into the bundle's continuation.
func (d *Driver) Sample(ctx context.Context, bundle *conditioning.Bundle, opts Options) (*tensor.Tensor, error) {
	if bundle == nil {
		return nil, errors.New("no conditioning to sample")
	}
	samples := min(max(opts.Samples, 1), maxSamples)
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(opts.Seed)))

	var x0, xT *tensor.Tensor
	if bundle.Overlap > 0 {
		var err error
		x0, xT, err = overlap.SeedLatents(bundle.Continuation, bundle.Shape, bundle.Overlap, rng)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("seeding latents from previous clip",
			"overlap", bundle.Overlap,
			"continued", x0 != nil)
	}

	req := model.SampleRequest{
		Steps:                 opts.Steps,
		Conditioning:          bundle.Positive,
		Unconditional:         bundle.Negative,
		Shape:                 bundle.Shape,
		GuidanceScale:         opts.GuidanceScale,
		TemporalGuidanceScale: opts.TemporalGuidanceScale,
		Eta:                   opts.Eta,
		CondT:                 opts.CondT,
		Features:              bundle.Features(),
		Pose:                  bundle.Pose(),
		X0:                    x0,
		XT:                    xT,
		Rand:                  rng,
	}

	var (
		variants []*tensor.Tensor
		last     *model.SampleResult
	)
	for i := 0; i < samples; i++ {
		result, err := d.handle.Sampler.Sample(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("variant %d/%d failed: %w", i+1, samples, err)
		}
		if result.Samples == nil || !result.Samples.SameShape(&tensor.Tensor{Shape: bundle.Shape.Dims()}) {
			return nil, fmt.Errorf("sampler returned latents %v, want %v", shapeOf(result.Samples), bundle.Shape)
		}
		decoded, err := d.handle.Model.DecodeFirstStage(ctx, result.Samples)
		if err != nil {
			return nil, fmt.Errorf("failed to decode variant %d: %w", i+1, err)
		}
		if decoded.Rank() != 5 || decoded.Shape[0] != 1 {
			return nil, fmt.Errorf("decoder returned %v, want (1, 3, T, H, W)", decoded.Shape)
		}
		video, err := decoded.Reshape(decoded.Shape[1:]...)
		if err != nil {
			return nil, err
		}
		variants = append(variants, video)
		last = result
		d.logger.Debug("sampled variant", "index", i+1, "of", samples, "steps", opts.Steps)
	}

	if bundle.Overlap > 0 && bundle.Continuation != nil {
		if err := overlap.Capture(bundle.Continuation, last.PredX0, last.XInter); err != nil {
			return nil, err
		}
	}

	video, err := tensor.Stack(0, variants...)
	if err != nil {
		return nil, fmt.Errorf("failed to stack variants: %w", err)
	}
	return video, nil
}

func shapeOf(t *tensor.Tensor) []int {
	if t == nil {
		return nil
	}
	return t.Shape
}
