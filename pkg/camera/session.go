package camera

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"ephys-cam/pkg/config"
	"ephys-cam/pkg/devstate"
	"ephys-cam/pkg/frame"
	"ephys-cam/pkg/sdk"
	"ephys-cam/pkg/utils"
	"ephys-cam/pkg/video"
)

const (
	StateOpen     = "open"
	StateLive     = "live"
	StateReleased = "released"

	eventStart   = "start"
	eventStop    = "stop"
	eventRelease = "release"

	snapTimeout = 2 * time.Second
)

var (
	ErrIndexOutOfRange = errors.New("camera index out of range")
	ErrReleased        = errors.New("camera session released")
	ErrConfigured      = errors.New("camera filters already installed")
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type options struct {
	stateDir  string
	queueSize int
	rotate    *int
	crop      *config.Crop
	exposure  *float64
}

type Option func(*options)

// WithStateDir sets the directory holding <name>_config.xml device-state files.
func WithStateDir(dir string) Option {
	return func(o *options) { o.stateDir = dir }
}

func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

func WithRotate(angle int) Option {
	return func(o *options) { o.rotate = &angle }
}

func WithCrop(c config.Crop) Option {
	return func(o *options) { o.crop = &c }
}

func WithExposure(v float64) Option {
	return func(o *options) { o.exposure = &v }
}

// Session owns one physical camera from open to release.
type Session struct {
	cfg     config.CameraConfig
	grabber sdk.Grabber
	cb      *CallbackContext

	lock       sync.Mutex
	state      *fsm.FSM
	configured bool
}

// Open resolves the camera by its enumeration index, restores its saved device
// state and installs the crop and rotation filters. Explicit options override
// the values from cfg.
func Open(lib sdk.Library, cfg config.CameraConfig, opts ...Option) (*Session, error) {
	o := &options{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.rotate != nil {
		cfg.Rotate = *o.rotate
	}
	if o.crop != nil {
		cfg.Crop = *o.crop
	}
	if o.exposure != nil {
		cfg.Exposure = *o.exposure
	}

	names, err := lib.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if cfg.Index < 0 || cfg.Index >= len(names) {
		return nil, fmt.Errorf("%w: %d of %d devices", ErrIndexOutOfRange, cfg.Index, len(names))
	}
	g, err := lib.Open(names[cfg.Index])
	if err != nil {
		return nil, fmt.Errorf("open camera %d (%s): %w", cfg.Index, names[cfg.Index], err)
	}

	s := &Session{
		cfg:     cfg,
		grabber: g,
		cb:      NewCallbackContext(cfg.Index, o.queueSize),
	}
	s.state = fsm.NewFSM(
		StateOpen,
		fsm.Events{
			{Name: eventStart, Src: []string{StateOpen}, Dst: StateLive},
			{Name: eventStop, Src: []string{StateLive}, Dst: StateOpen},
			{Name: eventRelease, Src: []string{StateOpen, StateLive}, Dst: StateReleased},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logger.Debugf("camera %d: %s -> %s", cfg.Index, e.Src, e.Dst)
			},
		},
	)

	if g.IsDevValid() {
		s.loadDeviceState(o.stateDir)
	}
	if err = s.Configure(cfg.Crop, cfg.Rotate, cfg.Exposure); err != nil {
		_ = g.Release()
		return nil, err
	}
	logger.Infof("camera %d (%s) opened as %s", cfg.Index, cfg.Name, g.Name())

	return s, nil
}

// loadDeviceState logs and ignores a missing or unreadable state file; the
// camera then keeps whatever state the device powered up with.
func (s *Session) loadDeviceState(dir string) {
	if dir == "" {
		return
	}
	path := devstate.Path(dir, s.cfg.Name)
	if err := s.grabber.LoadDeviceState(path); err != nil {
		logger.Warnf("could not load device state %s for camera %d, please check camera names: %s", path, s.cfg.Index, err)
		return
	}
	logger.Infof("loaded device state: %s", path)
}

// Configure installs the rotation filter (only for a non-zero angle), then the
// ROI filter, then applies the exposure. The device has no way to remove a
// filter, so only the first call may install them; later calls fail with
// ErrConfigured.
func (s *Session) Configure(crop config.Crop, rotate int, exposure float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkReleased(); err != nil {
		return err
	}
	if s.configured {
		return fmt.Errorf("%w: camera %d", ErrConfigured, s.cfg.Index)
	}
	s.configured = true

	if rotate != 0 {
		r, err := s.grabber.CreateFrameFilter(sdk.FilterRotateFlip)
		if err != nil {
			return fmt.Errorf("camera %d: rotate filter: %w", s.cfg.Index, err)
		}
		if err = s.grabber.AddFrameFilter(r); err != nil {
			return fmt.Errorf("camera %d: rotate filter: %w", s.cfg.Index, err)
		}
		if err = r.SetParameter(sdk.ParamRotationAngle, rotate); err != nil {
			return fmt.Errorf("camera %d: rotate filter: %w", s.cfg.Index, err)
		}
	}

	c, err := s.grabber.CreateFrameFilter(sdk.FilterROI)
	if err != nil {
		return fmt.Errorf("camera %d: roi filter: %w", s.cfg.Index, err)
	}
	if err = s.grabber.AddFrameFilter(c); err != nil {
		return fmt.Errorf("camera %d: roi filter: %w", s.cfg.Index, err)
	}
	params := []struct {
		name  string
		value int
	}{
		{sdk.ParamTop, crop.Top},
		{sdk.ParamLeft, crop.Left},
		{sdk.ParamHeight, crop.Height},
		{sdk.ParamWidth, crop.Width},
	}
	for _, p := range params {
		if err = c.SetParameter(p.name, p.value); err != nil {
			return fmt.Errorf("camera %d: roi %s: %w", s.cfg.Index, p.name, err)
		}
	}
	s.cfg.Crop, s.cfg.Rotate = crop, rotate

	return s.setExposure(exposure)
}

// ClampExposure saturates v into [0, 1]. NaN becomes 0.
func ClampExposure(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}

// SetExposure forwards the exposure time in seconds, clamped to [0, 1].
func (s *Session) SetExposure(v float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkReleased(); err != nil {
		return err
	}

	return s.setExposure(v)
}

func (s *Session) setExposure(v float64) error {
	v = ClampExposure(v)
	if err := s.grabber.SetPropertyAbsoluteValue(sdk.PropExposure, sdk.ElemValue, v); err != nil {
		return fmt.Errorf("camera %d: set exposure: %w", s.cfg.Index, err)
	}
	s.cfg.Exposure = v

	return nil
}

// Exposure reads the exposure back from the device, rounded to milliseconds.
func (s *Session) Exposure() (float64, error) {
	v, err := s.grabber.GetPropertyAbsoluteValue(sdk.PropExposure, sdk.ElemValue)
	if err != nil {
		return 0, fmt.Errorf("camera %d: get exposure: %w", s.cfg.Index, err)
	}

	return math.Round(v*1000) / 1000, nil
}

func (s *Session) SetFrameRate(fps float64) error {
	if err := s.grabber.SetFrameRate(fps); err != nil {
		return fmt.Errorf("camera %d: set frame rate: %w", s.cfg.Index, err)
	}

	return nil
}

// Image snaps a single frame from the live stream, flipped to output
// orientation.
func (s *Session) Image() (*frame.View, error) {
	if err := s.grabber.SnapImage(snapTimeout); err != nil {
		return nil, fmt.Errorf("camera %d: snap: %w", s.cfg.Index, err)
	}
	buf, desc, err := s.grabber.GetImage()
	if err != nil {
		return nil, fmt.Errorf("camera %d: get image: %w", s.cfg.Index, err)
	}
	v, err := frame.NewView(buf, desc)
	if err != nil {
		return nil, err
	}
	v.FlipVertical()

	return v, nil
}

func (s *Session) ImageDimensions() (width, height int, err error) {
	v, err := s.Image()
	if err != nil {
		return 0, 0, err
	}

	return v.Width, v.Height, nil
}

// StartLive starts streaming with frames delivered continuously to the frame
// callback. Starting a live session is a no-op.
func (s *Session) StartLive() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.checkReleased(); err != nil {
		return err
	}
	if s.state.Is(StateLive) {
		return nil
	}
	if _, ok := s.cb.Description(); !ok {
		s.refreshDescription()
	}
	if err := s.grabber.SetContinuousMode(true); err != nil {
		return fmt.Errorf("camera %d: continuous mode: %w", s.cfg.Index, err)
	}
	if err := s.grabber.StartLive(false); err != nil {
		return fmt.Errorf("camera %d: start live: %w", s.cfg.Index, err)
	}

	return s.state.Event(eventStart)
}

// Close stops streaming. It does not wait for a callback that is already
// running inside the SDK; DetachSink does.
func (s *Session) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.stopLive()
}

func (s *Session) stopLive() error {
	if !s.state.Is(StateLive) {
		return nil
	}
	if err := s.grabber.StopLive(); err != nil {
		return fmt.Errorf("camera %d: stop live: %w", s.cfg.Index, err)
	}

	return s.state.Event(eventStop)
}

// Release stops streaming, drains the frame queue and frees the device. The
// detached sink, if any, is closed.
func (s *Session) Release() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state.Is(StateReleased) {
		return nil
	}
	err := s.stopLive()
	if sink := s.cb.Detach(); sink != nil {
		err = errors.Join(err, sink.Close())
	}
	if e := s.grabber.Release(); e != nil {
		err = errors.Join(err, fmt.Errorf("camera %d: release: %w", s.cfg.Index, e))
	}

	return errors.Join(err, s.state.Event(eventRelease))
}

func (s *Session) checkReleased() error {
	if s.state.Is(StateReleased) {
		return fmt.Errorf("%w: camera %d", ErrReleased, s.cfg.Index)
	}
	return nil
}

func (s *Session) refreshDescription() {
	desc, err := s.grabber.ImageDescription()
	if err != nil {
		logger.Warnf("camera %d: image description: %s", s.cfg.Index, err)
		return
	}
	s.cb.SetDescription(desc)
}

// ArmTrigger switches the camera to hardware triggered, timed exposure: the
// trigger pulse starts the exposure after a 5us delay.
func (s *Session) ArmTrigger() error {
	g := s.grabber
	return s.wrap("arm trigger",
		g.SetPropertySwitch(sdk.PropTrigger, sdk.ElemEnable, true),
		g.SetPropertySwitch(sdk.PropTrigger, sdk.ElemPolarity, true),
		g.SetPropertyAbsoluteValue(sdk.PropTrigger, sdk.ElemDelay, sdk.TriggerDelayMicrosec),
		g.SetPropertyValue(sdk.PropTrigger, sdk.ElemLowLatencyMode, 1),
		g.SetPropertyValue(sdk.PropTrigger, sdk.ElemExposureMode, sdk.ExposureModeTimed),
	)
}

func (s *Session) DisarmTrigger() error {
	return s.wrap("disarm trigger", s.grabber.SetPropertySwitch(sdk.PropTrigger, sdk.ElemEnable, false))
}

// SoftwareTrigger caches the current image geometry, records the trigger time
// and then fires one capture.
func (s *Session) SoftwareTrigger() error {
	s.refreshDescription()
	s.cb.RecordTrigger(time.Now())

	return s.wrap("software trigger", s.grabber.PropertyOnePush(sdk.PropTrigger, sdk.ElemSoftwareTrigger))
}

// StrobeOn drives the strobe output high for the duration of each exposure.
func (s *Session) StrobeOn() error {
	g := s.grabber
	return s.wrap("strobe on",
		g.SetPropertySwitch(sdk.PropStrobe, sdk.ElemEnable, true),
		g.SetPropertyValue(sdk.PropStrobe, sdk.ElemMode, sdk.StrobeModeExposure),
		g.SetPropertySwitch(sdk.PropStrobe, sdk.ElemPolarity, true),
	)
}

func (s *Session) StrobeOff() error {
	return s.wrap("strobe off", s.grabber.SetPropertySwitch(sdk.PropStrobe, sdk.ElemEnable, false))
}

func (s *Session) GPOut() error {
	return s.wrap("gp out", s.grabber.SetPropertyValue(sdk.PropGPIO, sdk.ElemGPOut, 1))
}

func (s *Session) wrap(op string, errs ...error) error {
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("camera %d: %s: %w", s.cfg.Index, op, err)
	}
	return nil
}

// RegisterFrameCallback routes device frames into the session's callback
// context. Frames arriving before AttachSink are dropped.
func (s *Session) RegisterFrameCallback() error {
	return s.wrap("frame callback", s.grabber.SetFrameReadyCallback(s.cb.OnFrame))
}

// AttachSink must happen before the first trigger, otherwise those frames are
// dropped.
func (s *Session) AttachSink(sink video.Sink) error {
	return s.cb.Attach(sink)
}

// DetachSink waits for queued frames to be written and returns the sink
// without closing it.
func (s *Session) DetachSink() video.Sink {
	return s.cb.Detach()
}

func (s *Session) Callback() *CallbackContext {
	return s.cb
}

func (s *Session) Timestamps() Timestamps {
	return s.cb.Timestamps()
}

func (s *Session) Stats() Stats {
	return s.cb.Stats()
}

func (s *Session) Index() int {
	return s.cfg.Index
}

func (s *Session) Name() string {
	return s.cfg.Name
}

func (s *Session) DeviceName() string {
	return s.grabber.Name()
}

// Config is the effective configuration, including overrides and the last
// exposure set.
func (s *Session) Config() config.CameraConfig {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cfg
}

// Size is the output frame size after crop and rotation.
func (s *Session) Size() (width, height int) {
	return s.Config().Size()
}

func (s *Session) State() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state.Current()
}

// SaveDeviceState writes the device's current state to <dir>/<name>_config.xml.
func (s *Session) SaveDeviceState(dir string) (string, error) {
	path := devstate.Path(dir, s.cfg.Name)
	if err := s.grabber.SaveDeviceState(path); err != nil {
		return "", fmt.Errorf("camera %d: save device state: %w", s.cfg.Index, err)
	}

	return path, nil
}
