// Package conditioning turns a prompt and motion keyframes into the tensors one sampling call consumes.
package conditioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bdougie/motionctrl/internal/embeddings"
	"github.com/bdougie/motionctrl/internal/flow"
	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/model"
	"github.com/bdougie/motionctrl/internal/models"
	"github.com/bdougie/motionctrl/internal/overlap"
	"github.com/bdougie/motionctrl/internal/tensor"
)

// PostPrompt is appended to every positive prompt
const PostPrompt = "Ultra-detail, masterpiece, best quality, cinematic lighting, 8k uhd, dslr, soft lighting, film grain, Fujifilm XT3"

// DefaultNegativePrompt is embedded for the unconditional branch
const DefaultNegativePrompt = "blur, kaleidoscope, lowres, bad anatomy, bad hands, text, error, missing fingers, extra digit, fewer digits, cropped, worst quality, low quality, normal quality, jpeg artifacts, signature, watermark, username, blurry, deformed, disfigured"

const (
	// LatentFactor is the pixel-to-latent downscale of the first stage
	LatentFactor = 8
	sizeMultiple = 16
)

var ErrImageSize = fmt.Errorf("image size [h, w] must be multiples of %d", sizeMultiple)

// Request describes the conditioning for one call
type Request struct {
	Prompt     string
	Mode       Mode
	Camera     keyframes.Keyframes // 12 numbers per keyframe
	Trajectory keyframes.Keyframes // (x, y) per keyframe in the 1024 reference space
	Height     int
	Width      int
	Overlap    int
}

// Bundle is the immutable result of Build, consumed once by a sampling call
type Bundle struct {
	Positive *tensor.Tensor
	Negative model.Unconditional
	Motion   Motion
	Shape    models.NoiseShape
	Overlap  int

	// Continuation is the chain state the call blended against; the sampler
	// seeds from and captures into it when Overlap > 0
	Continuation *overlap.Continuation
}

// Pose returns the (1, N, 12, 1) pose tensor, or nil without a camera path
func (b *Bundle) Pose() *tensor.Tensor {
	if c, ok := cameraOf(b.Motion); ok {
		return c.Pose
	}
	return nil
}

// Poses returns the per-frame camera matrices, or nil without a camera path
func (b *Bundle) Poses() keyframes.Poses {
	if c, ok := cameraOf(b.Motion); ok {
		return c.Poses
	}
	return nil
}

// Features returns the trajectory adapter features, or nil without a trajectory
func (b *Bundle) Features() *tensor.Tensor {
	if t, ok := trajectoryOf(b.Motion); ok {
		return t.Features
	}
	return nil
}

// TrajectoryPoints returns the normalized trajectory, or nil without a trajectory
func (b *Bundle) TrajectoryPoints() keyframes.Keyframes {
	if t, ok := trajectoryOf(b.Motion); ok {
		return t.Points
	}
	return nil
}

// Builder produces conditioning bundles for one loaded model
type Builder struct {
	model  model.Model
	text   *embeddings.Cache
	synth  flow.Synthesizer
	logger *slog.Logger
}

// NewBuilder creates a builder; a nil synth selects the Gaussian flow synthesizer
func NewBuilder(m model.Model, synth flow.Synthesizer, logger *slog.Logger) *Builder {
	if synth == nil {
		synth = flow.NewGaussianSynthesizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		model:  m,
		text:   embeddings.NewCache(m),
		synth:  synth,
		logger: logger,
	}
}

// TextCache exposes the prompt embedding cache
func (b *Builder) TextCache() *embeddings.Cache {
	return b.text
}

// Build normalizes and stitches the motion keyframes, materializes them for the
// model and embeds the positive and negative prompts. state may be nil when the
// call is not chained.
func (b *Builder) Build(ctx context.Context, req Request, state *overlap.Continuation) (*Bundle, error) {
	if req.Height <= 0 || req.Width <= 0 || req.Height%sizeMultiple != 0 || req.Width%sizeMultiple != 0 {
		return nil, fmt.Errorf("%w: got [%d, %d]", ErrImageSize, req.Height, req.Width)
	}
	if !req.Mode.UsesCamera() && !req.Mode.UsesTrajectory() {
		return nil, fmt.Errorf("unknown conditioning mode %v", req.Mode)
	}
	if err := overlap.CheckOverlap(req.Overlap); err != nil {
		return nil, err
	}

	frames := b.model.TemporalLength()
	shape := models.NoiseShape{
		Batch:    1,
		Channels: b.model.Channels(),
		Frames:   frames,
		Height:   req.Height / LatentFactor,
		Width:    req.Width / LatentFactor,
	}

	camera, err := normalizeChannel("camera", req.Camera, frames, req.Mode.UsesCamera())
	if err != nil {
		return nil, err
	}
	trajectory, err := normalizeChannel("trajectory", req.Trajectory, frames, req.Mode.UsesTrajectory())
	if err != nil {
		return nil, err
	}
	if state == nil && req.Overlap > 0 {
		state = &overlap.Continuation{}
	}
	// stitch into a copy; state only advances once the whole bundle is built
	var staged overlap.Continuation
	if state != nil {
		staged = *state
	}
	camera, trajectory, err = overlap.Stitch(&staged, camera, trajectory, req.Overlap)
	if err != nil {
		return nil, err
	}

	var cam *CameraMotion
	if req.Mode.UsesCamera() {
		if cam, err = b.cameraMotion(camera, frames); err != nil {
			return nil, err
		}
	}
	var traj *TrajectoryMotion
	if req.Mode.UsesTrajectory() {
		if traj, err = b.trajectoryMotion(ctx, trajectory, frames); err != nil {
			return nil, err
		}
	}

	positive, err := b.text.LearnedConditioning(ctx, []string{fmt.Sprintf("%s, %s", req.Prompt, PostPrompt)})
	if err != nil {
		return nil, fmt.Errorf("failed to embed prompt: %w", err)
	}
	negatives := make([]string, shape.Batch)
	for i := range negatives {
		negatives[i] = DefaultNegativePrompt
	}
	negative, err := b.text.LearnedConditioning(ctx, negatives)
	if err != nil {
		return nil, fmt.Errorf("failed to embed negative prompt: %w", err)
	}

	bundle := &Bundle{
		Positive:     positive,
		Negative:     model.Unconditional{Text: negative},
		Shape:        shape,
		Overlap:      req.Overlap,
		Continuation: state,
	}
	switch {
	case cam != nil && traj != nil:
		bundle.Motion = CombinedMotion{Camera: *cam, Trajectory: *traj}
	case cam != nil:
		bundle.Motion = *cam
	default:
		bundle.Motion = *traj
	}
	if traj != nil {
		bundle.Negative.Features = traj.Unconditional
	}
	if state != nil {
		*state = staged
	}

	b.logger.Debug("built conditioning",
		"mode", req.Mode,
		"noise_shape", shape,
		"overlap", req.Overlap,
		"chained", state != nil && req.Overlap > 0)
	return bundle, nil
}

// normalizeChannel pads or truncates a channel the mode uses; unused channels are
// kept only when given so a chain can carry them forward
func normalizeChannel(name string, kf keyframes.Keyframes, frames int, required bool) (keyframes.Keyframes, error) {
	if len(kf) == 0 {
		if required {
			return nil, fmt.Errorf("%s keyframes: %w", name, keyframes.ErrEmpty)
		}
		return nil, nil
	}
	norm, err := keyframes.Normalize(kf, frames)
	if err != nil {
		return nil, fmt.Errorf("%s keyframes: %w", name, err)
	}
	return norm, nil
}

func (b *Builder) cameraMotion(camera keyframes.Keyframes, frames int) (*CameraMotion, error) {
	poses, err := keyframes.MaterializePoses(camera, frames)
	if err != nil {
		return nil, fmt.Errorf("invalid camera keyframes: %w", err)
	}
	return &CameraMotion{Poses: poses, Pose: poses.Tensor()}, nil
}

func (b *Builder) trajectoryMotion(ctx context.Context, trajectory keyframes.Keyframes, frames int) (*TrajectoryMotion, error) {
	field, err := flow.Materialize(trajectory, frames, b.synth)
	if err != nil {
		return nil, fmt.Errorf("invalid trajectory keyframes: %w", err)
	}
	batched := field.Unsqueeze(0)

	features, err := b.model.TrajectoryFeatures(ctx, batched)
	if err != nil {
		return nil, fmt.Errorf("failed to extract trajectory features: %w", err)
	}
	unconditional, err := b.model.TrajectoryFeatures(ctx, tensor.ZerosLike(batched))
	if err != nil {
		return nil, fmt.Errorf("failed to extract unconditional trajectory features: %w", err)
	}
	if features == nil || unconditional == nil {
		return nil, errors.New("model returned no trajectory features")
	}
	return &TrajectoryMotion{Points: trajectory, Features: features, Unconditional: unconditional}, nil
}
