package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `model:
  target: lvdm.models.ddpm3d.MotionCtrl
  params:
    channels: 4
    image_size: [32, 32]
    unet_config:
      target: lvdm.modules.networks.openaimodel3d.UNetModel
      params:
        temporal_length: 16
        model_channels: 320
`

func TestParseModelConfig_OverridesTemporalLength(t *testing.T) {
	cfg, err := ParseModelConfig([]byte(sampleConfig), 24)
	if err != nil {
		t.Fatalf("ParseModelConfig: %v", err)
	}
	if cfg.TemporalLength != 24 {
		t.Fatalf("TemporalLength = %d, want 24", cfg.TemporalLength)
	}
	if cfg.Channels != 4 || cfg.ImageSize != [2]int{32, 32} {
		t.Fatalf("channels/image size = %d/%v", cfg.Channels, cfg.ImageSize)
	}
	if v, ok := cfg.Lookup("model.params.unet_config.params.model_channels"); !ok || v != "320" {
		t.Fatalf("unknown key lost: %q %v", v, ok)
	}

	out, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "temporal_length: 24") {
		t.Fatalf("marshalled config missing override:\n%s", out)
	}
}

func TestParseModelConfig_CreatesMissingPath(t *testing.T) {
	cfg, err := ParseModelConfig([]byte("model:\n  target: x\n"), 8)
	if err != nil {
		t.Fatalf("ParseModelConfig: %v", err)
	}
	if cfg.TemporalLength != 8 || cfg.Target != "x" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseModelConfig_RejectsScalarParent(t *testing.T) {
	if _, err := ParseModelConfig([]byte("model: 3\n"), 8); err == nil {
		t.Fatalf("expected error when model is a scalar")
	}
}

func TestLoadModelConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_both.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadModelConfig(path, 16)
	if err != nil || cfg.TemporalLength != 16 {
		t.Fatalf("LoadModelConfig = %+v, %v", cfg, err)
	}
	if _, err := LoadModelConfig(filepath.Join(t.TempDir(), "missing.yaml"), 16); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("MOTIONCTRL_ROOT", "/opt/motionctrl")
	t.Setenv("MOTIONCTRL_CHECKPOINT", "/weights/motionctrl.pth")
	t.Setenv("MOTIONCTRL_HEIGHT", "320")
	t.Setenv("MOTIONCTRL_WIDTH", "bogus")
	t.Setenv("MOTIONCTRL_LOG_LEVEL", "debug")

	s := Load()
	if s.CheckpointPath != "/weights/motionctrl.pth" {
		t.Fatalf("CheckpointPath = %s", s.CheckpointPath)
	}
	if s.PresetDir != filepath.Join("/opt/motionctrl", "examples") {
		t.Fatalf("PresetDir = %s", s.PresetDir)
	}
	if s.Height != 320 || s.Width != 0 {
		t.Fatalf("size = %dx%d", s.Height, s.Width)
	}
	if s.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", s.LogLevel)
	}
}
