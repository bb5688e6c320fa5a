package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bdougie/motionctrl/internal/keyframes"
	"github.com/bdougie/motionctrl/internal/overlap"
	"github.com/bdougie/motionctrl/internal/tensor"
)

// File names of the continuation slot inside a state directory
const (
	CameraFile     = "camera.json"
	TrajectoryFile = "traj.json"
	PredX0File     = "pred_x0.bin"
	XInterFile     = "x_inter.bin"
)

// Store defines the interface for persisting the continuation slot between chained calls
type Store interface {
	// Load returns the stored continuation; absent parts are left nil
	Load(ctx context.Context) (*overlap.Continuation, error)

	// Save overwrites the slot with every non-nil part of c
	Save(ctx context.Context, c *overlap.Continuation) error

	// Reset clears the slot so the next chained call starts a new chain
	Reset(ctx context.Context) error
}

// FileStore keeps the continuation slot as files in one directory.
// It is not locked: chained calls sharing a directory must be serialized by the caller.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the state directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Load implements Store
func (s *FileStore) Load(ctx context.Context) (*overlap.Continuation, error) {
	c := &overlap.Continuation{}
	var err error
	if c.Camera, err = s.readKeyframes(CameraFile); err != nil {
		return nil, err
	}
	if c.Trajectory, err = s.readKeyframes(TrajectoryFile); err != nil {
		return nil, err
	}
	if c.PredX0, err = s.readTensor(PredX0File); err != nil {
		return nil, err
	}
	if c.XInter, err = s.readTensor(XInterFile); err != nil {
		return nil, err
	}
	return c, nil
}

// Save implements Store
func (s *FileStore) Save(ctx context.Context, c *overlap.Continuation) error {
	if c == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory '%s': %w", s.dir, err)
	}
	if c.Camera != nil {
		if err := s.writeKeyframes(CameraFile, c.Camera); err != nil {
			return err
		}
	}
	if c.Trajectory != nil {
		if err := s.writeKeyframes(TrajectoryFile, c.Trajectory); err != nil {
			return err
		}
	}
	if c.PredX0 != nil {
		if err := s.writeTensor(PredX0File, c.PredX0); err != nil {
			return err
		}
	}
	if c.XInter != nil {
		if err := s.writeTensor(XInterFile, c.XInter); err != nil {
			return err
		}
	}
	return nil
}

// Reset implements Store
func (s *FileStore) Reset(ctx context.Context) error {
	for _, name := range []string{CameraFile, TrajectoryFile, PredX0File, XInterFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove '%s': %w", name, err)
		}
	}
	return nil
}

func (s *FileStore) readKeyframes(name string) (keyframes.Keyframes, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", path, err)
	}
	var kf keyframes.Keyframes
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal '%s': %w", path, err)
	}
	return kf, nil
}

func (s *FileStore) writeKeyframes(name string, kf keyframes.Keyframes) error {
	path := filepath.Join(s.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", path, err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(kf); err != nil {
		return fmt.Errorf("failed to encode '%s': %w", path, err)
	}
	return nil
}

func (s *FileStore) readTensor(name string) (*tensor.Tensor, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", path, err)
	}
	t := &tensor.Tensor{}
	if err := t.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode '%s': %w", path, err)
	}
	return t, nil
}

func (s *FileStore) writeTensor(name string, t *tensor.Tensor) error {
	data, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	return nil
}
