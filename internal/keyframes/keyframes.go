// Package keyframes turns sparse user-authored control points into fixed-length per-frame sequences.
package keyframes

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmpty is returned when a keyframe list has no entries to repeat
var ErrEmpty = errors.New("keyframe list is empty")

// Keyframes is an ordered list of control points.
// Camera keyframes hold 12 numbers (a row-major 3x4 matrix), trajectory keyframes hold an (x, y) pair.
type Keyframes [][]float64

// ParseKeyframes decodes a JSON list of number lists
func ParseKeyframes(s string) (Keyframes, error) {
	var kf Keyframes
	if err := json.Unmarshal([]byte(s), &kf); err != nil {
		return nil, fmt.Errorf("failed to parse keyframes: %w", err)
	}
	return kf, nil
}

// String encodes the keyframes back to JSON
func (kf Keyframes) String() string {
	data, err := json.Marshal(kf)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Clone deep-copies the list
func (kf Keyframes) Clone() Keyframes {
	if kf == nil {
		return nil
	}
	out := make(Keyframes, len(kf))
	for i, p := range kf {
		out[i] = append([]float64(nil), p...)
	}
	return out
}

// Normalize returns exactly n keyframes: missing entries repeat the last one, extra entries are dropped.
// A single keyframe therefore yields a static sequence.
func Normalize(kf Keyframes, n int) (Keyframes, error) {
	if len(kf) == 0 {
		return nil, ErrEmpty
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid frame count %d", n)
	}

	out := kf.Clone()
	for len(out) < n {
		out = append(out, append([]float64(nil), out[len(out)-1]...))
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// checkWidth verifies every keyframe has exactly width numbers
func checkWidth(kf Keyframes, width int) error {
	for i, p := range kf {
		if len(p) != width {
			return fmt.Errorf("keyframe %d has %d values, want %d", i, len(p), width)
		}
	}
	return nil
}
