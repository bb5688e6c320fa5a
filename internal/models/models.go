package models

import "fmt"

// NoiseShape is the latent shape (batch, channels, frames, height, width) every sampling call produces
type NoiseShape struct {
	Batch    int
	Channels int
	Frames   int
	Height   int
	Width    int
}

// Dims returns the shape as a tensor dimension list
func (s NoiseShape) Dims() []int {
	return []int{s.Batch, s.Channels, s.Frames, s.Height, s.Width}
}

// WithFrames returns a copy with a different temporal length
func (s NoiseShape) WithFrames(frames int) NoiseShape {
	s.Frames = frames
	return s
}

func (s NoiseShape) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d, %d]", s.Batch, s.Channels, s.Frames, s.Height, s.Width)
}

// GenerationRequest represents one end-to-end generation call
type GenerationRequest struct {
	Prompt     string
	Camera     string // JSON list of 12-number pose keyframes
	Trajectory string // JSON list of [x, y] points in the 1024 reference space
	Mode       string
	Frames     int
	Steps      int
	Seed       int64
	Overlap    int
	Samples    int

	DrawTrajectory bool
	DrawCamera     bool
}
