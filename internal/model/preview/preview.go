// Package preview is a deterministic stand-in for the MotionCtrl network.
// It keeps every tensor shape and data path of the real model so conditioning,
// chaining and overlays can be exercised without weights.
package preview

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/bdougie/motionctrl/internal/config"
	"github.com/bdougie/motionctrl/internal/model"
	"github.com/bdougie/motionctrl/internal/tensor"
)

const (
	defaultChannels = 4
	tokenCount      = 77
	embedDim        = 32
	// DownFactor is the pixel-to-latent scale
	DownFactor = 8
	logEvery   = 10
)

// Factory builds preview handles
type Factory struct{}

// Instantiate implements model.Factory
func (Factory) Instantiate(_ context.Context, cfg *config.ModelConfig, _ string) (*model.Handle, error) {
	m := New(cfg.Channels, cfg.TemporalLength)
	return &model.Handle{Model: m, Sampler: &Sampler{}}, nil
}

// Model implements model.Model
type Model struct {
	channels int
	frames   int
}

// New creates a preview model; channels <= 0 selects the usual 4 latent channels
func New(channels, frames int) *Model {
	if channels <= 0 {
		channels = defaultChannels
	}
	return &Model{channels: channels, frames: frames}
}

func (m *Model) Channels() int       { return m.channels }
func (m *Model) TemporalLength() int { return m.frames }

// LearnedConditioning derives a pseudo-embedding from each prompt's hash
func (m *Model) LearnedConditioning(_ context.Context, prompts []string) (*tensor.Tensor, error) {
	out := tensor.New(len(prompts), tokenCount, embedDim)
	per := tokenCount * embedDim
	for i, p := range prompts {
		h := fnv.New64a()
		h.Write([]byte(p))
		rng := rand.New(rand.NewPCG(h.Sum64(), uint64(len(p))))
		for j := 0; j < per; j++ {
			out.Data[i*per+j] = float32(rng.NormFloat64() * 0.1)
		}
	}
	return out, nil
}

// TrajectoryFeatures mean-pools the flow down to latent resolution
func (m *Model) TrajectoryFeatures(_ context.Context, flow *tensor.Tensor) (*tensor.Tensor, error) {
	if flow.Rank() != 5 {
		return nil, fmt.Errorf("trajectory flow must be (B, 2, N, H, W), got %v", flow.Shape)
	}
	b, c, n, h, w := flow.Shape[0], flow.Shape[1], flow.Shape[2], flow.Shape[3], flow.Shape[4]
	lh, lw := h/DownFactor, w/DownFactor
	out := tensor.New(b, c, n, lh, lw)
	scale := float32(1) / float32(DownFactor*DownFactor)
	for bi := 0; bi < b; bi++ {
		for ci := 0; ci < c; ci++ {
			for ni := 0; ni < n; ni++ {
				for y := 0; y < lh*DownFactor; y++ {
					for x := 0; x < lw*DownFactor; x++ {
						v := flow.At(bi, ci, ni, y, x)
						if v == 0 {
							continue
						}
						idx := []int{bi, ci, ni, y / DownFactor, x / DownFactor}
						out.Set(out.At(idx...)+v*scale, idx...)
					}
				}
			}
		}
	}
	return out, nil
}

// DecodeFirstStage upsamples the first three latent channels with nearest neighbour and squashes them into [-1, 1]
func (m *Model) DecodeFirstStage(_ context.Context, latents *tensor.Tensor) (*tensor.Tensor, error) {
	if latents.Rank() != 5 {
		return nil, fmt.Errorf("latents must be (B, C, N, h, w), got %v", latents.Shape)
	}
	b, c, n, h, w := latents.Shape[0], latents.Shape[1], latents.Shape[2], latents.Shape[3], latents.Shape[4]
	H, W := h*DownFactor, w*DownFactor
	out := tensor.New(b, 3, n, H, W)
	i := 0
	for bi := 0; bi < b; bi++ {
		for ch := 0; ch < 3; ch++ {
			src := ch % c
			for ni := 0; ni < n; ni++ {
				for y := 0; y < H; y++ {
					for x := 0; x < W; x++ {
						out.Data[i] = float32(math.Tanh(float64(latents.At(bi, src, ni, y/DownFactor, x/DownFactor))))
						i++
					}
				}
			}
		}
	}
	return out, nil
}

// Sampler implements model.Sampler with a guided relaxation towards a conditioning-derived target
type Sampler struct{}

// Sample implements model.Sampler
func (s *Sampler) Sample(ctx context.Context, req model.SampleRequest) (*model.SampleResult, error) {
	if req.Steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", req.Steps)
	}
	if req.Rand == nil {
		return nil, fmt.Errorf("sample request has no random source")
	}
	dims := req.Shape.Dims()

	x := req.XT
	if x == nil {
		x = tensor.Randn(req.Rand, dims...)
	} else {
		x = x.Clone()
	}
	if !x.SameShape(&tensor.Tensor{Shape: dims}) {
		return nil, fmt.Errorf("initial latents %v do not match noise shape %v", x.Shape, dims)
	}

	target := s.target(req)
	result := &model.SampleResult{}
	pred := target.Clone()
	if req.X0 != nil {
		pred = req.X0.Clone()
	}
	result.PredX0 = append(result.PredX0, pred.Clone())
	result.XInter = append(result.XInter, x.Clone())

	for step := 0; step < req.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// alpha stays below 1 so part of the starting noise survives
		alpha := float32(step+1) / float32(req.Steps+1)
		noise := float32(req.Eta) * 0.01 * (1 - alpha)
		for i := range x.Data {
			pred.Data[i] = pred.Data[i] + alpha*(target.Data[i]-pred.Data[i])
			x.Data[i] = (1-alpha)*x.Data[i] + alpha*pred.Data[i]
			if noise > 0 {
				x.Data[i] += noise * float32(req.Rand.NormFloat64())
			}
		}
		if (step+1)%logEvery == 0 || step == req.Steps-1 {
			result.PredX0 = append(result.PredX0, pred.Clone())
			result.XInter = append(result.XInter, x.Clone())
		}
	}
	result.Samples = x
	return result, nil
}

// target builds a latent the run relaxes towards: guided text bias per channel,
// camera translation drift over time and pooled trajectory features
func (s *Sampler) target(req model.SampleRequest) *tensor.Tensor {
	shape := req.Shape
	out := tensor.New(shape.Dims()...)

	cond := mean(req.Conditioning)
	uncond := mean(req.Unconditional.Text)
	bias := uncond + float32(req.GuidanceScale)*(cond-uncond)

	i := 0
	for b := 0; b < shape.Batch; b++ {
		for c := 0; c < shape.Channels; c++ {
			for t := 0; t < shape.Frames; t++ {
				drift := float32(0)
				if req.Pose != nil && req.Pose.Shape[1] > t {
					// translation components sit at 3, 7 and 11 of each pose row
					drift = req.Pose.At(0, t, 3+4*(c%3), 0)
				}
				for y := 0; y < shape.Height; y++ {
					for x := 0; x < shape.Width; x++ {
						v := bias + 0.1*float32(c) + drift
						if f := req.Features; f != nil && f.Rank() == 5 && f.Shape[2] > t && f.Shape[3] > y && f.Shape[4] > x {
							v += f.At(0, c%f.Shape[1], t, y, x)
						}
						out.Data[i] = v
						i++
					}
				}
			}
		}
	}
	return out
}

func mean(t *tensor.Tensor) float32 {
	if t == nil || t.Len() == 0 {
		return 0
	}
	var sum float64
	for _, v := range t.Data {
		sum += float64(v)
	}
	return float32(sum / float64(t.Len()))
}
