// Package overlap chains independently sampled clips into one continuous video.
//
// A Continuation holds what the previous call leaves behind: its blended camera and
// trajectory keyframes and its final predicted-clean and intermediate latents. The
// next call blends its motion with the stored head and seeds its starting latents
// with the stored tail. The slot is keyed by "most recent call" only; interleaving
// two chains through one Continuation corrupts both.
package overlap

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/models"
	"github.com/bdougie/motionctrl/internal/tensor"
)

// MaxOverlap is the largest supported context overlap in frames
const MaxOverlap = 32

// temporalAxis is the frame axis of (B, C, N, h, w) latents
const temporalAxis = 2

var ErrOverlapRange = fmt.Errorf("context overlap must be within [0, %d]", MaxOverlap)

var ErrOverlapTooLong = errors.New("context overlap must be shorter than the clip")

// Continuation is the state carried from one chained call to the next
type Continuation struct {
	Camera     keyframes.Keyframes
	Trajectory keyframes.Keyframes
	PredX0     *tensor.Tensor
	XInter     *tensor.Tensor
}

// HasLatents reports whether both carried latents are present
func (c *Continuation) HasLatents() bool {
	return c != nil && c.PredX0 != nil && c.XInter != nil
}

// Empty reports whether nothing has been carried yet
func (c *Continuation) Empty() bool {
	return c == nil || (c.Camera == nil && c.Trajectory == nil && c.PredX0 == nil && c.XInter == nil)
}

// CheckOverlap validates k against the supported range
func CheckOverlap(k int) error {
	if k < 0 || k > MaxOverlap {
		return fmt.Errorf("%w: got %d", ErrOverlapRange, k)
	}
	return nil
}

// Stitch blends camera and trajectory keyframes with the previous call's sequences.
// With k == 0 the inputs pass through and state is left alone. With k > 0 a channel
// that has a stored sequence becomes prev[:k] ++ new[:len(new)-k], and the result,
// blended or not, is stored in state for the next call. A nil channel is skipped and
// its stored sequence kept.
func Stitch(state *Continuation, camera, trajectory keyframes.Keyframes, k int) (keyframes.Keyframes, keyframes.Keyframes, error) {
	if err := CheckOverlap(k); err != nil {
		return nil, nil, err
	}
	if k == 0 || state == nil {
		return camera, trajectory, nil
	}

	if camera != nil {
		if state.Camera != nil {
			camera = blend(state.Camera, camera, k)
		}
		state.Camera = camera.Clone()
	}
	if trajectory != nil {
		if state.Trajectory != nil {
			trajectory = blend(state.Trajectory, trajectory, k)
		}
		state.Trajectory = trajectory.Clone()
	}
	return camera, trajectory, nil
}

// blend returns prev[:k] ++ cur[:len(cur)-k] with slice bounds clamped
func blend(prev, cur keyframes.Keyframes, k int) keyframes.Keyframes {
	head := prev[:min(k, len(prev))]
	tail := cur[:max(len(cur)-k, 0)]
	out := make(keyframes.Keyframes, 0, len(head)+len(tail))
	out = append(out, head.Clone()...)
	out = append(out, tail.Clone()...)
	return out
}

// SeedLatents builds starting latents that continue the previous clip: the last k frames
// of the stored predicted-clean and intermediate latents followed by fresh noise for the
// remaining frames. Both overrides share the same noise. It returns nils when there is
// nothing to continue from.
func SeedLatents(state *Continuation, shape models.NoiseShape, k int, rng *rand.Rand) (x0, xT *tensor.Tensor, err error) {
	if err := CheckOverlap(k); err != nil {
		return nil, nil, err
	}
	if k == 0 || !state.HasLatents() {
		return nil, nil, nil
	}
	if k >= shape.Frames {
		return nil, nil, fmt.Errorf("%w: overlap %d, frames %d", ErrOverlapTooLong, k, shape.Frames)
	}

	noise := tensor.Randn(rng, shape.WithFrames(shape.Frames-k).Dims()...)
	x0, err = withTail(state.PredX0, noise, k)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seed predicted latents: %w", err)
	}
	xT, err = withTail(state.XInter, noise, k)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seed intermediate latents: %w", err)
	}
	return x0, xT, nil
}

func withTail(prev, noise *tensor.Tensor, k int) (*tensor.Tensor, error) {
	if prev.Rank() != 5 {
		return nil, fmt.Errorf("carried latents must be (B, C, N, h, w), got %v", prev.Shape)
	}
	n := prev.Shape[temporalAxis]
	if k > n {
		return nil, fmt.Errorf("%w: overlap %d, carried frames %d", ErrOverlapTooLong, k, n)
	}
	tail, err := prev.Slice(temporalAxis, n-k, n)
	if err != nil {
		return nil, err
	}
	return tensor.Concat(temporalAxis, tail, noise)
}

// Capture stores the last predicted-clean and intermediate latents of a run
func Capture(state *Continuation, predX0, xInter []*tensor.Tensor) error {
	if state == nil {
		return errors.New("no continuation to capture into")
	}
	if len(predX0) == 0 || len(xInter) == 0 {
		return errors.New("sampler returned no intermediates")
	}
	state.PredX0 = predX0[len(predX0)-1].Clone()
	state.XInter = xInter[len(xInter)-1].Clone()
	return nil
}
