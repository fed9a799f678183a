package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendSim  = "sim"
	BackendV4L2 = "v4l2"
)

// Settings are the runtime knobs of the rig tools. Camera setup lives in Details.
type Settings struct {
	Port        int           `mapstructure:"port"`
	WebdavPort  int           `mapstructure:"webdav_port"`
	DetailsFile string        `mapstructure:"details_file"`
	StateDir    string        `mapstructure:"state_dir"`
	Backend     string        `mapstructure:"backend"`
	FPS         float64       `mapstructure:"fps"`
	Trigger     bool          `mapstructure:"trigger"`
	Strobe      bool          `mapstructure:"strobe"`
	QueueSize   int           `mapstructure:"queue_size"`
	JPEGQuality int           `mapstructure:"jpeg_quality"`
	NTPServer   string        `mapstructure:"ntp_server"`
	NTPTimeout  time.Duration `mapstructure:"ntp_timeout"`
	LogLevel    string        `mapstructure:"log_level"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 9999)
	v.SetDefault("webdav_port", 9998)
	v.SetDefault("details_file", "camera_details.json")
	v.SetDefault("state_dir", "configs")
	v.SetDefault("backend", BackendSim)
	v.SetDefault("fps", 30.0)
	v.SetDefault("trigger", true)
	v.SetDefault("strobe", true)
	v.SetDefault("queue_size", 64)
	v.SetDefault("jpeg_quality", 90)
	v.SetDefault("ntp_server", "")
	v.SetDefault("ntp_timeout", 2*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{})
}

// LoadSettings reads defaults, RIG_* environment variables, an optional config
// file already set on v and any flags bound to it.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix("rig")
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file err: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshal settings err: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Settings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("invalid fps: %v", s.FPS)
	}
	if s.QueueSize < 1 {
		return fmt.Errorf("invalid queue size: %d", s.QueueSize)
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d", s.JPEGQuality)
	}
	switch s.Backend {
	case BackendSim, BackendV4L2:
	default:
		return fmt.Errorf("unknown backend: %s", s.Backend)
	}

	return nil
}
