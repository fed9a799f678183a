//go:build linux && cgo

package v4l2

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	v4l2api "github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"ephys-cam/pkg/devstate"
	"ephys-cam/pkg/frame"
	"ephys-cam/pkg/sdk"
	"ephys-cam/pkg/sdk/chain"
	"ephys-cam/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
	sdk.Register(Name, func() (sdk.Library, error) {
		return NewLibrary(), nil
	})
}

type Library struct {
	lock sync.Mutex
	busy map[string]bool
}

func NewLibrary() *Library {
	return &Library{busy: make(map[string]bool)}
}

// Devices lists /dev/video* nodes in path order.
func (l *Library) Devices() ([]string, error) {
	paths, err := device.GetAllDevicePaths()
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	return paths, nil
}

func (l *Library) Open(name string) (sdk.Grabber, error) {
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("%w: %s", sdk.ErrNoDevice, name)
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.busy[name] {
		return nil, fmt.Errorf("%w: %s", sdk.ErrDeviceBusy, name)
	}
	l.busy[name] = true

	return newDevice(l, name), nil
}

func (l *Library) release(name string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.busy, name)
}

// Device is opened on StartLive and closed on StopLive; controls are applied
// again after every open.
type Device struct {
	lib  *Library
	path string

	lock     sync.Mutex
	open     bool
	camera   *device.Device
	cancel   context.CancelFunc
	done     chan struct{}
	format   sdk.ImageDescription
	stride   int
	fps      float64
	exposure float64
	props    *devstate.State
	filters  chain.Chain
	trigger  gate
	callback sdk.FrameReadyFunc
	frameNum uint64

	latest     []byte
	latestDesc sdk.ImageDescription
	next       chan struct{}
	snap       []byte
	snapDesc   sdk.ImageDescription
}

func newDevice(lib *Library, path string) *Device {
	return &Device{
		lib:      lib,
		path:     path,
		open:     true,
		fps:      DefaultFPS,
		exposure: 0.01,
		props:    &devstate.State{Device: path},
		format:   sdk.ImageDescription{Width: DefaultWidth, Height: DefaultHeight, BitsPerPixel: 8, ColorFormat: sdk.Y800},
		next:     make(chan struct{}),
	}
}

func (d *Device) Name() string {
	return d.path
}

func (d *Device) IsDevValid() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.open {
		return false
	}
	_, err := os.Stat(d.path)

	return err == nil
}

func (d *Device) LoadDeviceState(path string) error {
	s, err := devstate.Load(path)
	if err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if s.FrameRate > 0 {
		d.fps = s.FrameRate
	}
	for _, p := range s.Properties {
		switch {
		case p.Name == sdk.PropExposure && p.Element == sdk.ElemValue:
			v, err := p.Float()
			if err != nil {
				return fmt.Errorf("%s/%s: %w", p.Name, p.Element, err)
			}
			d.exposure = v
		case p.Name == sdk.PropTrigger && p.Element == sdk.ElemEnable:
			on, err := p.Bool()
			if err != nil {
				return fmt.Errorf("%s/%s: %w", p.Name, p.Element, err)
			}
			d.trigger.enable(on)
		}
	}
	d.props = s

	return d.applyControls()
}

func (d *Device) SaveDeviceState(path string) error {
	d.lock.Lock()
	s := &devstate.State{Device: d.path, FrameRate: d.fps, Properties: append([]devstate.Property(nil), d.props.Properties...)}
	s.SetAbsolute(sdk.PropExposure, sdk.ElemValue, d.exposure)
	s.SetSwitch(sdk.PropTrigger, sdk.ElemEnable, d.trigger.isEnabled())
	d.lock.Unlock()

	return s.Save(path)
}

func (d *Device) CreateFrameFilter(name string) (sdk.Filter, error) {
	return chain.Create(name)
}

func (d *Device) AddFrameFilter(f sdk.Filter) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.camera != nil {
		return chain.ErrLive
	}
	d.filters.Add(f)

	return nil
}

func (d *Device) SetFrameRate(fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("invalid frame rate %v", fps)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.fps = fps
	if d.camera != nil {
		return d.camera.SetFrameRate(uint32(fps + 0.5))
	}

	return nil
}

func unsupported(property, element string) error {
	return fmt.Errorf("%w: %s/%s", sdk.ErrNotSupported, property, element)
}

// hasNoOutputs reports properties UVC cameras have no line for.
func hasNoOutputs(property string) bool {
	return property == sdk.PropStrobe || property == sdk.PropGPIO
}

func (d *Device) SetPropertyAbsoluteValue(property, element string, value float64) error {
	if hasNoOutputs(property) {
		return unsupported(property, element)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if property == sdk.PropExposure && element == sdk.ElemValue {
		d.exposure = value
		return d.applyControls()
	}
	d.props.SetAbsolute(property, element, value)

	return nil
}

func (d *Device) GetPropertyAbsoluteValue(property, element string) (float64, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if property == sdk.PropExposure && element == sdk.ElemValue {
		if d.camera != nil {
			ctrl, err := d.camera.GetControl(ctrlExposureAbsolute)
			if err == nil {
				return ctrlToExposure(int32(ctrl.Value)), nil
			}
			logger.Warnf("%s: read exposure: %s", d.path, err)
		}
		return d.exposure, nil
	}
	p, ok := d.props.Lookup(property, element)
	if !ok {
		return 0, unsupported(property, element)
	}

	return p.Float()
}

func (d *Device) SetPropertyValue(property, element string, value int) error {
	if hasNoOutputs(property) {
		return unsupported(property, element)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.props.SetValue(property, element, value)

	return nil
}

func (d *Device) SetPropertySwitch(property, element string, on bool) error {
	if hasNoOutputs(property) {
		return unsupported(property, element)
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if property == sdk.PropTrigger && element == sdk.ElemEnable {
		d.trigger.enable(on)
		return nil
	}
	d.props.SetSwitch(property, element, on)

	return nil
}

func (d *Device) PropertyOnePush(property, element string) error {
	if property != sdk.PropTrigger || element != sdk.ElemSoftwareTrigger {
		return unsupported(property, element)
	}
	d.lock.Lock()
	live := d.camera != nil
	d.lock.Unlock()
	if !live {
		return sdk.ErrNotLive
	}
	d.trigger.arm()

	return nil
}

// SetContinuousMode is accepted for compatibility; the stream is always
// continuous.
func (d *Device) SetContinuousMode(bool) error {
	return nil
}

func (d *Device) SetFrameReadyCallback(fn sdk.FrameReadyFunc) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.callback = fn

	return nil
}

func (d *Device) StartLive(bool) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.open {
		return sdk.ErrReleased
	}
	if d.camera != nil {
		return nil
	}
	camera, err := device.Open(
		d.path,
		device.WithBufferSize(4),
		device.WithFPS(uint32(d.fps+0.5)),
		device.WithPixFormat(v4l2api.PixFormat{
			PixelFormat: v4l2api.PixelFmtGrey,
			Width:       uint32(d.format.Width),
			Height:      uint32(d.format.Height),
		}),
	)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	pf, err := camera.GetPixFormat()
	if err != nil {
		_ = camera.Close()
		return fmt.Errorf("%s: pixel format: %w", d.path, err)
	}
	if pf.PixelFormat != v4l2api.PixelFmtGrey {
		_ = camera.Close()
		return fmt.Errorf("%w: %s does not deliver 8 bit gray frames", sdk.ErrNotSupported, d.path)
	}
	d.format.Width, d.format.Height = int(pf.Width), int(pf.Height)
	d.stride = int(pf.BytesPerLine)

	ctx, cancel := context.WithCancel(context.Background())
	if err = camera.Start(ctx); err != nil {
		cancel()
		_ = camera.Close()
		return fmt.Errorf("start %s: %w", d.path, err)
	}
	d.camera = camera
	d.cancel = cancel
	if err = d.applyControls(); err != nil {
		logger.Warnf("%s: apply controls: %s", d.path, err)
	}
	d.done = make(chan struct{})
	go d.deliver(ctx, camera.GetOutput(), d.done)
	logger.Infof("%s: live %dx%d at %.1f fps", d.path, d.format.Width, d.format.Height, d.fps)

	return nil
}

// applyControls pushes exposure into the open device. Callers hold d.lock.
func (d *Device) applyControls() error {
	if d.camera == nil {
		return nil
	}
	if err := d.camera.SetControlValue(ctrlExposureAuto, exposureManual); err != nil {
		return fmt.Errorf("manual exposure: %w", err)
	}
	if err := d.camera.SetControlValue(ctrlExposureAbsolute, v4l2api.CtrlValue(exposureToCtrl(d.exposure))); err != nil {
		return fmt.Errorf("exposure: %w", err)
	}

	return nil
}

// deliver is the per-device callback goroutine.
func (d *Device) deliver(ctx context.Context, frames <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-frames:
			if !ok {
				return
			}
			d.handle(buf)
		}
	}
}

func (d *Device) handle(buf []byte) {
	d.lock.Lock()
	sensor, stride := d.format, d.stride
	d.lock.Unlock()

	v, err := frame.NewStridedView(buf, sensor, stride)
	if err != nil {
		logger.Warnf("%s: %s", d.path, err)
		return
	}
	if v, err = d.filters.Apply(v); err != nil {
		logger.Warnf("%s: %s", d.path, err)
		return
	}

	d.lock.Lock()
	d.frameNum++
	n := d.frameNum
	d.latest, d.latestDesc = v.Pix, v.Description()
	close(d.next)
	d.next = make(chan struct{})
	cb := d.callback
	d.lock.Unlock()

	if cb != nil && d.trigger.take() {
		cb(v.Pix, n)
	}
}

// StopLive returns once the callback goroutine has exited.
func (d *Device) StopLive() error {
	d.lock.Lock()
	if d.camera == nil {
		d.lock.Unlock()
		return nil
	}
	camera, cancel, done := d.camera, d.cancel, d.done
	d.lock.Unlock()

	cancel()
	<-done
	// the stream goroutine of go4vl stops the device on ctx.Done
	time.Sleep(100 * time.Millisecond)
	err := camera.Close()

	d.lock.Lock()
	d.camera, d.cancel, d.done = nil, nil, nil
	d.lock.Unlock()

	return err
}

func (d *Device) SnapImage(timeout time.Duration) error {
	d.lock.Lock()
	if d.camera == nil {
		d.lock.Unlock()
		return sdk.ErrNotLive
	}
	next := d.next
	d.lock.Unlock()

	select {
	case <-next:
	case <-time.After(timeout):
		return sdk.ErrTimeout
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.snap = append([]byte(nil), d.latest...)
	d.snapDesc = d.latestDesc

	return nil
}

func (d *Device) GetImage() ([]byte, sdk.ImageDescription, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.snap == nil {
		return nil, sdk.ImageDescription{}, fmt.Errorf("%s: no image snapped", d.path)
	}

	return append([]byte(nil), d.snap...), d.snapDesc, nil
}

func (d *Device) ImageDescription() (sdk.ImageDescription, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.filters.Describe(d.format), nil
}

func (d *Device) Release() error {
	err := d.StopLive()
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.open {
		return sdk.ErrReleased
	}
	d.open = false
	d.callback = nil
	d.lib.release(d.path)

	return err
}
