package keyframes

import (
	"github.com/bdougie/motionctrl/internal/tensor"
)

// PoseWidth is the number of values in a flattened 3x4 camera pose
const PoseWidth = 12

// Pose is a camera rotation and translation, row-major 3x4
type Pose [3][4]float64

// Translation returns the last column
func (p Pose) Translation() [3]float64 {
	return [3]float64{p[0][3], p[1][3], p[2][3]}
}

// Poses is a per-frame camera path
type Poses []Pose

// MaterializePoses normalizes camera keyframes to n frames and reshapes each into a 3x4 matrix
func MaterializePoses(kf Keyframes, n int) (Poses, error) {
	norm, err := Normalize(kf, n)
	if err != nil {
		return nil, err
	}
	if err := checkWidth(norm, PoseWidth); err != nil {
		return nil, err
	}

	poses := make(Poses, len(norm))
	for i, row := range norm {
		for r := 0; r < 3; r++ {
			for c := 0; c < 4; c++ {
				poses[i][r][c] = row[r*4+c]
			}
		}
	}
	return poses, nil
}

// Flatten returns one 12-value row per frame
func (ps Poses) Flatten() Keyframes {
	out := make(Keyframes, len(ps))
	for i, p := range ps {
		row := make([]float64, 0, PoseWidth)
		for r := 0; r < 3; r++ {
			row = append(row, p[r][:]...)
		}
		out[i] = row
	}
	return out
}

// Tensor returns the (1, N, 12, 1) pose embedding input the model consumes
func (ps Poses) Tensor() *tensor.Tensor {
	t := tensor.New(1, len(ps), PoseWidth, 1)
	for i, row := range ps.Flatten() {
		for j, v := range row {
			t.Data[i*PoseWidth+j] = float32(v)
		}
	}
	return t
}
