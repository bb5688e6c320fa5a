// Package model declares the frozen MotionCtrl network as a set of collaborators.
package model

import (
	"context"
	"math/rand/v2"

	"github.com/bdougie/motionctrl/internal/config"
	"github.com/bdougie/motionctrl/internal/models"
	"github.com/bdougie/motionctrl/internal/tensor"
)

// Model exposes the pieces of the network the conditioning pipeline drives
type Model interface {
	// Channels is the latent channel count
	Channels() int
	// TemporalLength is the frame count the network was instantiated for
	TemporalLength() int
	// LearnedConditioning embeds one text prompt per batch entry
	LearnedConditioning(ctx context.Context, prompts []string) (*tensor.Tensor, error)
	// TrajectoryFeatures turns a (B, 2, N, H, W) flow field into adapter features
	TrajectoryFeatures(ctx context.Context, flow *tensor.Tensor) (*tensor.Tensor, error)
	// DecodeFirstStage maps (B, C, N, h, w) latents to (B, 3, N, H, W) pixels in [-1, 1]
	DecodeFirstStage(ctx context.Context, latents *tensor.Tensor) (*tensor.Tensor, error)
}

// Unconditional is the negative branch used for classifier-free guidance
type Unconditional struct {
	Text     *tensor.Tensor
	Features *tensor.Tensor // zero-motion trajectory features; nil without a trajectory
}

// SampleRequest carries everything one denoising run needs
type SampleRequest struct {
	Steps         int
	Conditioning  *tensor.Tensor
	Unconditional Unconditional
	Shape         models.NoiseShape

	GuidanceScale         float64
	TemporalGuidanceScale *float64
	Eta                   float64
	CondT                 int

	Features *tensor.Tensor // nil without a trajectory
	Pose     *tensor.Tensor // nil without a camera path

	// X0 and XT replace the sampler's own starting latents when set
	X0 *tensor.Tensor
	XT *tensor.Tensor

	Rand *rand.Rand
}

// SampleResult holds the final latents and the per-step intermediates
type SampleResult struct {
	Samples *tensor.Tensor
	PredX0  []*tensor.Tensor
	XInter  []*tensor.Tensor
}

// Sampler runs the denoising loop
type Sampler interface {
	Sample(ctx context.Context, req SampleRequest) (*SampleResult, error)
}

// Handle is a loaded model and its sampler
type Handle struct {
	Model   Model
	Sampler Sampler
	Config  *config.ModelConfig
}

// Factory instantiates a network from its config and checkpoint
type Factory interface {
	Instantiate(ctx context.Context, cfg *config.ModelConfig, checkpoint string) (*Handle, error)
}
