package rig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"ephys-cam/pkg/camera"
	"ephys-cam/pkg/clock"
	"ephys-cam/pkg/config"
	"ephys-cam/pkg/frame"
	"ephys-cam/pkg/schedule"
	"ephys-cam/pkg/sdk"
	"ephys-cam/pkg/storage"
	"ephys-cam/pkg/utils"
	"ephys-cam/pkg/video"
)

var (
	ErrRecording    = errors.New("a recording is already running")
	ErrNotRecording = errors.New("no recording is running")
	ErrNoCamera     = errors.New("no such camera")
	ErrClosed       = errors.New("rig closed")
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Rig drives every camera of a recording setup as one unit: all cameras share
// the frame rate, the software trigger tick and the recording start time.
type Rig struct {
	opts    Options
	details *config.Details

	lock     sync.Mutex
	sessions []*camera.Session
	sched    *schedule.Scheduler
	cancel   context.CancelFunc
	current  *recording
	last     *Summary
	closed   bool

	events *broker
}

type recording struct {
	subject   string
	startedAt time.Time
	offset    time.Duration
	takes     []*take
}

type take struct {
	session *camera.Session
	rec     *storage.Recording
	sink    *video.MJPEG
}

// New opens every camera listed in details. When one camera fails the ones
// already opened are released again.
func New(lib sdk.Library, details *config.Details, opts Options) (*Rig, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}
	r := &Rig{
		opts:    opts,
		details: details,
		events:  newBroker(),
	}
	for _, cfg := range details.Cameras() {
		s, err := camera.Open(lib, cfg,
			camera.WithStateDir(opts.StateDir),
			camera.WithQueueSize(opts.QueueSize),
		)
		if err != nil {
			r.releaseAll()
			return nil, err
		}
		r.sessions = append(r.sessions, s)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.sched = schedule.New(ctx)

	return r, nil
}

func (r *Rig) releaseAll() error {
	var err error
	for _, s := range r.sessions {
		err = errors.Join(err, s.Release())
	}
	return err
}

func (r *Rig) Sessions() []*camera.Session {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*camera.Session(nil), r.sessions...)
}

func (r *Rig) Session(index int) (*camera.Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.session(index)
}

func (r *Rig) session(index int) (*camera.Session, error) {
	for _, s := range r.sessions {
		if s.Index() == index {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNoCamera, index)
}

func (r *Rig) Details() *config.Details {
	return r.details
}

func (r *Rig) Options() Options {
	return r.opts
}

// StartRecording opens one video per camera under the camera's output
// directory and starts acquisition. Sinks are attached before any trigger is
// armed so the first exposure is already recorded.
func (r *Rig) StartRecording(subject string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.current != nil {
		return ErrRecording
	}

	offset, err := clock.Offset(r.opts.NTPServer, r.opts.NTPTimeout)
	if err != nil {
		logger.Warnf("rig: clock offset unknown: %s", err)
	}
	cur := &recording{
		subject:   subject,
		startedAt: time.Now(),
		offset:    offset,
	}
	for _, s := range r.sessions {
		t, err := r.prepare(s, cur)
		if t != nil {
			cur.takes = append(cur.takes, t)
		}
		if err != nil {
			r.abort(cur)
			return err
		}
	}
	if r.opts.Trigger {
		triggers := make([]schedule.Trigger, 0, len(r.sessions))
		for _, s := range r.sessions {
			triggers = append(triggers, s)
		}
		if err = r.sched.Begin(r.opts.FPS, triggers...); err != nil {
			r.abort(cur)
			return err
		}
	}
	r.current = cur
	logger.Infof("rig: recording %s with %d camera(s) at %.2f fps", subject, len(cur.takes), r.opts.FPS)
	r.events.publish(Event{Type: EventRecordingStarted, Time: cur.startedAt, Status: r.statusLocked()})

	return nil
}

func (r *Rig) prepare(s *camera.Session, cur *recording) (*take, error) {
	cfg := s.Config()
	rec, err := storage.NewRecording(cfg.OutputDir, cur.subject, cfg.Name, cur.startedAt)
	if err != nil {
		return nil, fmt.Errorf("camera %d: %w", cfg.Index, err)
	}
	w, h := s.Size()
	sink, err := video.NewMJPEG(rec.VideoPath(), w, h, containerFPS(r.opts.FPS), r.opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("camera %d: %w", cfg.Index, err)
	}
	s.Callback().Reset()
	if err = s.AttachSink(sink); err != nil {
		_ = sink.Close()
		return nil, err
	}
	t := &take{session: s, rec: rec, sink: sink}

	if r.opts.Trigger {
		if err = s.ArmTrigger(); err != nil {
			return t, err
		}
	} else if err = optional(s.DisarmTrigger()); err != nil {
		return t, err
	}
	if r.opts.Strobe {
		if err = optional(s.StrobeOn()); err != nil {
			return t, err
		}
	}
	if err = s.RegisterFrameCallback(); err != nil {
		return t, err
	}
	if err = s.SetFrameRate(r.opts.FPS); err != nil {
		return t, err
	}

	return t, s.StartLive()
}

// containerFPS is the whole frame rate written to the AVI header. Rates below
// one frame per second are stored as 1.
func containerFPS(fps float64) int {
	return max(1, int(math.Round(fps)))
}

// optional swallows features the backend does not have.
func optional(err error) error {
	if errors.Is(err, sdk.ErrNotSupported) {
		logger.Warnf("rig: %s", err)
		return nil
	}
	return err
}

// abort undoes prepare for every camera that got that far, leaving no sink
// open, no trigger armed and no strobe on.
func (r *Rig) abort(cur *recording) {
	r.sched.Stop()
	for _, t := range cur.takes {
		s := t.session
		errs := []error{s.Close()}
		s.DetachSink()
		errs = append(errs, t.sink.Close())
		if r.opts.Trigger {
			errs = append(errs, optional(s.DisarmTrigger()))
		}
		if r.opts.Strobe {
			errs = append(errs, optional(s.StrobeOff()))
		}
		if err := errors.Join(errs...); err != nil {
			logger.Errorf("rig: abort: %s", err)
		}
	}
}

// StopRecording stops the trigger tick and the streams, waits for every queued
// frame to be written, then stores timestamps and metadata next to each video.
func (r *Rig) StopRecording() (*Summary, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.stopLocked()
}

func (r *Rig) stopLocked() (*Summary, error) {
	cur := r.current
	if cur == nil {
		return nil, ErrNotRecording
	}
	r.current = nil
	if r.opts.Trigger {
		r.sched.Stop()
	}
	pulses, failures := r.sched.Pulses()

	stoppedAt := time.Now()
	sum := &Summary{
		Subject:     cur.subject,
		StartedAt:   cur.startedAt,
		StoppedAt:   stoppedAt,
		ClockOffset: cur.offset,
		Pulses:      pulses,
	}
	var errs error
	for _, t := range cur.takes {
		s := t.session
		if err := s.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
		s.DetachSink()
		if err := t.sink.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
		if r.opts.Strobe {
			errs = errors.Join(errs, optional(s.StrobeOff()))
		}

		ts := s.Timestamps()
		meta := Metadata{
			Subject:         cur.subject,
			Camera:          s.Config(),
			Device:          s.DeviceName(),
			StartedAt:       cur.startedAt,
			StoppedAt:       stoppedAt,
			ClockOffset:     cur.offset,
			ClockOffsetText: cur.offset.String(),
			NTPServer:       r.opts.NTPServer,
			FPS:             r.opts.FPS,
			Trigger:         r.opts.Trigger,
			Strobe:          r.opts.Strobe,
			Frames:          t.sink.Frames(),
			Stats:           s.Stats(),
			TriggerFailures: failures,
			Video:           t.rec.VideoPath(),
		}
		if err := t.rec.SaveTimestamps(ts); err != nil {
			errs = errors.Join(errs, fmt.Errorf("camera %d: save timestamps: %w", s.Index(), err))
		}
		if err := t.rec.SaveMetadata(meta); err != nil {
			errs = errors.Join(errs, fmt.Errorf("camera %d: save metadata: %w", s.Index(), err))
		}
		sum.Cameras = append(sum.Cameras, CameraSummary{
			Index:      s.Index(),
			Name:       s.Name(),
			Video:      t.rec.VideoPath(),
			Timestamps: t.rec.TimestampsPath(),
			Metadata:   t.rec.MetadataPath(),
			Frames:     meta.Frames,
			Stats:      meta.Stats,
		})
	}
	r.last = sum
	logger.Infof("rig: recording %s stopped after %s", cur.subject, stoppedAt.Sub(cur.startedAt).Round(time.Millisecond))
	if errs != nil {
		logger.Errorf("rig: stop recording: %s", errs)
		r.events.publish(Event{Type: EventError, Time: stoppedAt, Message: errs.Error()})
	}
	r.events.publish(Event{Type: EventRecordingStopped, Time: stoppedAt, Status: r.statusLocked()})

	return sum, errs
}

// Record runs one recording for d, or until ctx is done.
func (r *Rig) Record(ctx context.Context, subject string, d time.Duration) (*Summary, error) {
	if err := r.StartRecording(subject); err != nil {
		return nil, err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		logger.Info("rig: recording interrupted")
	}

	return r.StopRecording()
}

// SetExposure changes one camera's exposure, also while recording.
func (r *Rig) SetExposure(index int, v float64) (float64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, err := r.session(index)
	if err != nil {
		return 0, err
	}
	if err = s.SetExposure(v); err != nil {
		return 0, err
	}
	got, err := s.Exposure()
	if err != nil {
		return 0, err
	}
	r.events.publish(Event{Type: EventExposureChanged, Time: time.Now(), Camera: &index, Message: fmt.Sprintf("%.3f", got)})

	return got, nil
}

// Snapshot encodes the newest frame of a live camera as JPEG.
func (r *Rig) Snapshot(index int) ([]byte, error) {
	s, err := r.Session(index)
	if err != nil {
		return nil, err
	}
	v, err := s.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err = frame.EncodeJPEG(v.Image(), &buf, r.opts.JPEGQuality); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// SaveDeviceStates writes every camera's device state into the state
// directory so that the next Open restores it.
func (r *Rig) SaveDeviceStates() ([]string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var paths []string
	var errs error
	for _, s := range r.sessions {
		p, err := s.SaveDeviceState(r.opts.StateDir)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		paths = append(paths, p)
	}

	return paths, errs
}

// OutputDirs lists the distinct output directories of all cameras.
func (r *Rig) OutputDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, c := range r.details.Cameras() {
		if !seen[c.OutputDir] {
			seen[c.OutputDir] = true
			dirs = append(dirs, c.OutputDir)
		}
	}
	sort.Strings(dirs)

	return dirs
}

// Mounts maps each camera name to its output directory.
func (r *Rig) Mounts() map[string]string {
	m := make(map[string]string)
	for _, c := range r.details.Cameras() {
		m[c.Name] = c.OutputDir
	}
	return m
}

func (r *Rig) Subscribe() (<-chan Event, func()) {
	return r.events.subscribe(16)
}

// Close stops a running recording and releases every camera.
func (r *Rig) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.current != nil {
		_, err = r.stopLocked()
	}
	r.cancel()
	err = errors.Join(err, r.releaseAll())
	r.events.closeAll()

	return err
}
