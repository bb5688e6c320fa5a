package keyframes

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// CameraPresets lists the bundled camera motion presets
var CameraPresets = []string{
	"U", "D", "L", "R", "O", "O_0.2x", "O_0.4x", "O_1.0x", "O_2.0x",
	"Round-RI", "Round-RI_90", "Round-RI-120", "Round-ZoomIn",
	"SPIN-ACW-60", "SPIN-CW-60",
	"I", "I_0.2x", "I_0.4x", "I_1.0x", "I_2.0x",
	"1424acd0007d40b5", "d971457c81bca597", "018f7907401f2fef", "088b93f15ca8745d", "b133a504fc90a2d1",
}

// TrajectoryPresets lists the bundled object trajectory presets
var TrajectoryPresets = []string{
	"curve_1", "curve_2", "curve_3", "curve_4", "horizon_2", "shake_1", "shake_2", "shaking_10",
}

// trajectoryPresetScale maps preset coordinates into the 1024 reference space
const trajectoryPresetScale = 4

// PresetLibrary resolves named presets from a directory laid out as
// camera_poses/test_camera_<name>.json and trajectories/<name>.txt
type PresetLibrary struct {
	Root string
}

// NewPresetLibrary creates a preset resolver rooted at dir
func NewPresetLibrary(dir string) *PresetLibrary {
	return &PresetLibrary{Root: dir}
}

// Camera returns the raw JSON of a camera preset
func (l *PresetLibrary) Camera(name string) (string, error) {
	if !slices.Contains(CameraPresets, name) {
		return "", fmt.Errorf("unknown camera preset '%s'", name)
	}
	path := filepath.Join(l.Root, "camera_poses", fmt.Sprintf("test_camera_%s.json", name))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read camera preset '%s': %w", path, err)
	}
	return string(data), nil
}

// Trajectory loads a trajectory preset sized for frames
func (l *PresetLibrary) Trajectory(name string, frames int, reverse bool) (Keyframes, error) {
	if !slices.Contains(TrajectoryPresets, name) {
		return nil, fmt.Errorf("unknown trajectory preset '%s'", name)
	}
	return ReadPoints(filepath.Join(l.Root, "trajectories", name+".txt"), frames, reverse)
}

// ReadPoints reads "x,y" lines, scales them into the reference space and
// down-samples by fixed stride until at most frames points remain
func ReadPoints(path string, frames int, reverse bool) (Keyframes, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trajectory file '%s': %w", path, err)
	}
	defer file.Close()

	var points Keyframes
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		x, y, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected 'x,y'", path, line)
		}
		xi, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		yi, err := strconv.Atoi(strings.TrimSpace(y))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		points = append(points, []float64{float64(xi * trajectoryPresetScale), float64(yi * trajectoryPresetScale)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trajectory file '%s': %w", path, err)
	}

	if reverse {
		slices.Reverse(points)
	}
	if frames > 0 && len(points) > frames {
		skip := len(points) / frames
		sampled := make(Keyframes, 0, frames+1)
		for i := 0; i < len(points); i += skip {
			sampled = append(sampled, points[i])
		}
		points = sampled
	}
	if frames >= 0 && len(points) > frames {
		points = points[:frames]
	}
	return points, nil
}
