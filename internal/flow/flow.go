// Package flow converts sparse trajectory points into dense per-frame flow fields.
package flow

import (
	"fmt"
	"math"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/tensor"
)

const (
	// ReferenceExtent is the coordinate space user trajectories are authored in
	ReferenceExtent = 1024
	// WorkingSize is the square resolution flow fields are synthesized at
	WorkingSize = 256
)

// Point is a trajectory position in working-resolution pixels
type Point struct {
	X, Y int
}

// Synthesizer expands per-frame points into an (N, H, W, 2) flow field
type Synthesizer interface {
	Synthesize(points []Point, frames int) (*tensor.Tensor, error)
}

// Rescale maps reference-space coordinates to the working resolution with floor(working*c/reference)
func Rescale(kf keyframes.Keyframes, reference, working int) ([]Point, error) {
	if reference <= 0 || working <= 0 {
		return nil, fmt.Errorf("invalid rescale extents %d -> %d", reference, working)
	}
	points := make([]Point, len(kf))
	for i, p := range kf {
		if len(p) != 2 {
			return nil, fmt.Errorf("trajectory point %d has %d values, want 2", i, len(p))
		}
		points[i] = Point{
			X: int(math.Floor(float64(working) * p[0] / float64(reference))),
			Y: int(math.Floor(float64(working) * p[1] / float64(reference))),
		}
	}
	return points, nil
}

// Materialize normalizes trajectory keyframes to frames entries, rescales them and
// returns the synthesized flow in channel-first (2, N, H, W) layout
func Materialize(kf keyframes.Keyframes, frames int, synth Synthesizer) (*tensor.Tensor, error) {
	norm, err := keyframes.Normalize(kf, frames)
	if err != nil {
		return nil, err
	}
	points, err := Rescale(norm, ReferenceExtent, WorkingSize)
	if err != nil {
		return nil, err
	}

	field, err := synth.Synthesize(points, frames)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize flow: %w", err)
	}
	if field.Rank() != 4 || field.Shape[0] != frames || field.Shape[3] != 2 {
		return nil, fmt.Errorf("synthesizer returned shape %v, want (%d, H, W, 2)", field.Shape, frames)
	}
	return field.Transpose(3, 0, 1, 2)
}
