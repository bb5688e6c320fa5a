package conditioning

import (
	"fmt"
	"strings"
)

// Mode selects which motion signals condition a run
type Mode int

const (
	ModeCamera Mode = iota + 1
	ModeTrajectory
	ModeBoth
)

// Labels used by the host application's mode dropdown
const (
	LabelCamera     = "control camera poses"
	LabelTrajectory = "control object trajectory"
	LabelBoth       = "control both camera and object motion"
)

// ParseMode accepts the host labels and the short forms camera, trajectory and both
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LabelCamera, "camera":
		return ModeCamera, nil
	case LabelTrajectory, "trajectory", "traj":
		return ModeTrajectory, nil
	case LabelBoth, "both":
		return ModeBoth, nil
	}
	return 0, fmt.Errorf("unknown conditioning mode '%s'", s)
}

// UsesCamera reports whether the mode carries a camera path
func (m Mode) UsesCamera() bool {
	return m == ModeCamera || m == ModeBoth
}

// UsesTrajectory reports whether the mode carries an object trajectory
func (m Mode) UsesTrajectory() bool {
	return m == ModeTrajectory || m == ModeBoth
}

func (m Mode) String() string {
	switch m {
	case ModeCamera:
		return "camera"
	case ModeTrajectory:
		return "trajectory"
	case ModeBoth:
		return "both"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}
