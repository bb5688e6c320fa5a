package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults for generation parameters
const (
	DefaultFrames  = 16
	DefaultSteps   = 50
	DefaultSeed    = 1234
	DefaultHeight  = 256
	DefaultWidth   = 256
	DefaultBackend = "preview"
)

// Settings holds plugin-level paths and defaults, read from MOTIONCTRL_* environment variables
type Settings struct {
	Root            string // install directory the relative paths resolve against
	CheckpointPath  string
	ModelConfigPath string
	PresetDir       string
	StateDir        string
	StateDSN        string // optional PostgreSQL continuation store
	Backend         string
	Height          int // 0 takes the model config's image size
	Width           int
	LogLevel        slog.Level
}

// Load reads settings from the environment
func Load() Settings {
	root := str("MOTIONCTRL_ROOT", ".")
	s := Settings{
		Root:            root,
		CheckpointPath:  resolve(root, str("MOTIONCTRL_CHECKPOINT", "checkpoints/motionctrl.pth")),
		ModelConfigPath: resolve(root, str("MOTIONCTRL_MODEL_CONFIG", "configs/inference/config_both.yaml")),
		PresetDir:       resolve(root, str("MOTIONCTRL_PRESETS", "examples")),
		StateDir:        resolve(root, str("MOTIONCTRL_STATE_DIR", "state")),
		StateDSN:        str("MOTIONCTRL_STATE_DSN", ""),
		Backend:         str("MOTIONCTRL_BACKEND", DefaultBackend),
		Height:          integer("MOTIONCTRL_HEIGHT", 0),
		Width:           integer("MOTIONCTRL_WIDTH", 0),
		LogLevel:        slog.LevelInfo,
	}
	if v := str("MOTIONCTRL_LOG_LEVEL", ""); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			s.LogLevel = lvl
		}
	}
	return s
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func str(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func integer(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
