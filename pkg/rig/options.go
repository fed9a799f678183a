package rig

import (
	"time"

	"ephys-cam/pkg/camera"
	"ephys-cam/pkg/config"
	"ephys-cam/pkg/video"
)

type Options struct {
	StateDir    string
	FPS         float64
	Trigger     bool
	Strobe      bool
	QueueSize   int
	JPEGQuality int
	NTPServer   string
	NTPTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		StateDir:    "configs",
		FPS:         30,
		Trigger:     true,
		Strobe:      true,
		QueueSize:   camera.DefaultQueueSize,
		JPEGQuality: video.DefaultQuality,
		NTPTimeout:  2 * time.Second,
	}
}

func OptionsFromSettings(s *config.Settings) Options {
	return Options{
		StateDir:    s.StateDir,
		FPS:         s.FPS,
		Trigger:     s.Trigger,
		Strobe:      s.Strobe,
		QueueSize:   s.QueueSize,
		JPEGQuality: s.JPEGQuality,
		NTPServer:   s.NTPServer,
		NTPTimeout:  s.NTPTimeout,
	}
}
