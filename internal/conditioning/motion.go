package conditioning

import (
	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/tensor"
)

// Motion is the motion part of a conditioning bundle.
// It is one of CameraMotion, TrajectoryMotion or CombinedMotion.
type Motion interface {
	Mode() Mode
	motion()
}

// CameraMotion conditions on a camera path
type CameraMotion struct {
	Poses keyframes.Poses
	Pose  *tensor.Tensor // (1, N, 12, 1)
}

// TrajectoryMotion conditions on an object trajectory
type TrajectoryMotion struct {
	// Points are the normalized keyframes in the 1024 reference space
	Points keyframes.Keyframes
	// Features are extracted from the trajectory flow
	Features *tensor.Tensor
	// Unconditional features are extracted from an all-zero flow of the same shape
	Unconditional *tensor.Tensor
}

// CombinedMotion conditions on both a camera path and an object trajectory
type CombinedMotion struct {
	Camera     CameraMotion
	Trajectory TrajectoryMotion
}

func (CameraMotion) Mode() Mode     { return ModeCamera }
func (TrajectoryMotion) Mode() Mode { return ModeTrajectory }
func (CombinedMotion) Mode() Mode   { return ModeBoth }

func (CameraMotion) motion()     {}
func (TrajectoryMotion) motion() {}
func (CombinedMotion) motion()   {}

// cameraOf returns the camera part of m, if any
func cameraOf(m Motion) (*CameraMotion, bool) {
	switch v := m.(type) {
	case CameraMotion:
		return &v, true
	case CombinedMotion:
		return &v.Camera, true
	}
	return nil, false
}

// trajectoryOf returns the trajectory part of m, if any
func trajectoryOf(m Motion) (*TrajectoryMotion, bool) {
	switch v := m.(type) {
	case TrajectoryMotion:
		return &v, true
	case CombinedMotion:
		return &v.Trajectory, true
	}
	return nil, false
}
