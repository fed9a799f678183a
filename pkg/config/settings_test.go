package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(viper.New())
	checkErr(t, err)

	if s.Port != 9999 || s.Backend != BackendSim || s.FPS != 30 || !s.Trigger {
		t.Errorf("unexpected defaults: %+v", s)
	}
}

func TestLoadSettingsEnv(t *testing.T) {
	t.Setenv("RIG_PORT", "8081")
	t.Setenv("RIG_FPS", "60")

	s, err := LoadSettings(viper.New())
	checkErr(t, err)
	if s.Port != 8081 || s.FPS != 60 {
		t.Errorf("env not applied: port=%d fps=%v", s.Port, s.FPS)
	}
}

func TestSettingsValidate(t *testing.T) {
	v := viper.New()
	v.Set("backend", "gige")
	if _, err := LoadSettings(v); err == nil {
		t.Error("expected unknown backend error")
	}
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rig.yaml")
	data := "backend: v4l2\nfps: 50\nstrobe: false\ncors_origins:\n  - http://rig.local\n"
	if err := os.WriteFile(path, []byte(data), 0666); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	s, err := LoadSettings(v)
	checkErr(t, err)
	if s.Backend != BackendV4L2 || s.FPS != 50 || s.Strobe {
		t.Errorf("file not applied: %+v", s)
	}
	if len(s.CORSOrigins) != 1 || s.CORSOrigins[0] != "http://rig.local" {
		t.Errorf("cors origins = %v", s.CORSOrigins)
	}
}
