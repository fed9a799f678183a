package rig

import (
	"time"

	"ephys-cam/pkg/camera"
	"ephys-cam/pkg/config"
)

type CameraStatus struct {
	Index    int                 `json:"index"`
	Name     string              `json:"name"`
	Device   string              `json:"device"`
	State    string              `json:"state"`
	Exposure float64             `json:"exposure"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Config   config.CameraConfig `json:"config"`
	Stats    camera.Stats        `json:"stats"`
}

type Status struct {
	Recording bool           `json:"recording"`
	Subject   string         `json:"subject,omitempty"`
	StartedAt *time.Time     `json:"startedAt,omitempty"`
	Elapsed   string         `json:"elapsed,omitempty"`
	FPS       float64        `json:"fps"`
	Trigger   bool           `json:"trigger"`
	Cameras   []CameraStatus `json:"cameras"`
	Last      *Summary       `json:"last,omitempty"`
}

type CameraSummary struct {
	Index      int          `json:"index"`
	Name       string       `json:"name"`
	Video      string       `json:"video"`
	Timestamps string       `json:"timestamps"`
	Metadata   string       `json:"metadata"`
	Frames     int          `json:"frames"`
	Stats      camera.Stats `json:"stats"`
}

type Summary struct {
	Subject     string          `json:"subject"`
	StartedAt   time.Time       `json:"startedAt"`
	StoppedAt   time.Time       `json:"stoppedAt"`
	ClockOffset time.Duration   `json:"clockOffset"`
	Pulses      int             `json:"pulses"`
	Cameras     []CameraSummary `json:"cameras"`
}

// Metadata is stored next to every video.
type Metadata struct {
	Subject         string              `json:"subject"`
	Camera          config.CameraConfig `json:"camera"`
	Device          string              `json:"device"`
	StartedAt       time.Time           `json:"startedAt"`
	StoppedAt       time.Time           `json:"stoppedAt"`
	ClockOffset     time.Duration       `json:"clockOffsetNs"`
	ClockOffsetText string              `json:"clockOffset"`
	NTPServer       string              `json:"ntpServer,omitempty"`
	FPS             float64             `json:"fps"`
	Trigger         bool                `json:"trigger"`
	Strobe          bool                `json:"strobe"`
	Frames          int                 `json:"frames"`
	Stats           camera.Stats        `json:"stats"`
	TriggerFailures int                 `json:"triggerFailures"`
	Video           string              `json:"video"`
}

func (r *Rig) Status() *Status {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.statusLocked()
}

func (r *Rig) statusLocked() *Status {
	st := &Status{
		FPS:     r.opts.FPS,
		Trigger: r.opts.Trigger,
		Last:    r.last,
	}
	if cur := r.current; cur != nil {
		started := cur.startedAt
		st.Recording = true
		st.Subject = cur.subject
		st.StartedAt = &started
		st.Elapsed = time.Since(started).Round(time.Second).String()
	}
	for _, s := range r.sessions {
		w, h := s.Size()
		cs := CameraStatus{
			Index:  s.Index(),
			Name:   s.Name(),
			State:  s.State(),
			Width:  w,
			Height: h,
			Config: s.Config(),
			Stats:  s.Stats(),
		}
		if cs.State != camera.StateReleased {
			cs.Device = s.DeviceName()
			if v, err := s.Exposure(); err == nil {
				cs.Exposure = v
			}
		}
		st.Cameras = append(st.Cameras, cs)
	}

	return st
}
