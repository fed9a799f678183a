package sim

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ephys-cam/pkg/devstate"
	"ephys-cam/pkg/frame"
	"ephys-cam/pkg/sdk"
	"ephys-cam/pkg/sdk/chain"
)

type Device struct {
	name             string
	sensorW, sensorH int

	lock       sync.Mutex
	open       bool
	filters    chain.Chain
	absolute   map[string]float64
	values     map[string]int
	switches   map[string]bool
	onePushes  map[string]int
	fps        float64
	continuous bool
	callback   sdk.FrameReadyFunc
	frameNum   uint64
	snap       []byte
	snapDesc   sdk.ImageDescription

	live     bool
	stop     chan struct{}
	triggers chan struct{}
	wg       sync.WaitGroup
}

func newDevice(name string, width, height int) *Device {
	d := &Device{name: name, sensorW: width, sensorH: height}
	d.reset()

	return d
}

func key(property, element string) string {
	return property + "/" + element
}

func (d *Device) reset() {
	d.filters.Reset()
	d.absolute = map[string]float64{key(sdk.PropExposure, sdk.ElemValue): 0.01}
	d.values = make(map[string]int)
	d.switches = make(map[string]bool)
	d.onePushes = make(map[string]int)
	d.fps = DefaultFPS
	d.continuous = true
	d.callback = nil
	d.frameNum = 0
	d.snap = nil
}

func (d *Device) acquire() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.open {
		return fmt.Errorf("%w: %s", sdk.ErrDeviceBusy, d.name)
	}
	d.open = true
	d.reset()

	return nil
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) IsDevValid() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.open
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
		k := key(p.Name, p.Element)
		switch p.Kind {
		case devstate.KindAbsolute:
			v, err := p.Float()
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			d.absolute[k] = v
		case devstate.KindValue:
			v, err := p.Int()
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			d.values[k] = v
		case devstate.KindSwitch:
			v, err := p.Bool()
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			d.switches[k] = v
		}
	}

	return nil
}

func (d *Device) SaveDeviceState(path string) error {
	d.lock.Lock()
	s := &devstate.State{Device: d.name, FrameRate: d.fps}
	for k, v := range d.absolute {
		p, e := split(k)
		s.SetAbsolute(p, e, v)
	}
	for k, v := range d.values {
		p, e := split(k)
		s.SetValue(p, e, v)
	}
	for k, v := range d.switches {
		p, e := split(k)
		s.SetSwitch(p, e, v)
	}
	d.lock.Unlock()

	return s.Save(path)
}

func split(k string) (property, element string) {
	property, element, _ = strings.Cut(k, "/")
	return
}

func (d *Device) CreateFrameFilter(name string) (sdk.Filter, error) {
	return chain.Create(name)
}

func (d *Device) AddFrameFilter(f sdk.Filter) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.live {
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

	return nil
}

func (d *Device) SetPropertyAbsoluteValue(property, element string, value float64) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.absolute[key(property, element)] = value

	return nil
}

func (d *Device) GetPropertyAbsoluteValue(property, element string) (float64, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	v, ok := d.absolute[key(property, element)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", sdk.ErrNotSupported, key(property, element))
	}

	return v, nil
}

func (d *Device) SetPropertyValue(property, element string, value int) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.values[key(property, element)] = value

	return nil
}

func (d *Device) SetPropertySwitch(property, element string, on bool) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.switches[key(property, element)] = on

	return nil
}

func (d *Device) PropertyOnePush(property, element string) error {
	d.lock.Lock()
	d.onePushes[key(property, element)]++
	if property != sdk.PropTrigger || element != sdk.ElemSoftwareTrigger {
		d.lock.Unlock()
		return nil
	}
	if !d.live {
		d.lock.Unlock()
		return sdk.ErrNotLive
	}
	triggered := d.switches[key(sdk.PropTrigger, sdk.ElemEnable)]
	triggers, stop := d.triggers, d.stop
	d.lock.Unlock()

	if !triggered {
		return nil
	}
	select {
	case triggers <- struct{}{}:
	case <-stop:
	}

	return nil
}

func (d *Device) SetContinuousMode(on bool) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.continuous = on

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
	if d.live {
		return nil
	}
	d.live = true
	d.stop = make(chan struct{})
	d.triggers = make(chan struct{}, 16)

	var tick <-chan time.Time
	if !d.switches[key(sdk.PropTrigger, sdk.ElemEnable)] {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / d.fps))
		tick = ticker.C
		d.wg.Add(1)
		go func(stop chan struct{}) {
			defer d.wg.Done()
			<-stop
			ticker.Stop()
		}(d.stop)
	}

	d.wg.Add(1)
	go d.deliver(d.stop, d.triggers, tick)

	return nil
}

// deliver is the per-device callback goroutine.
func (d *Device) deliver(stop, triggers chan struct{}, tick <-chan time.Time) {
	defer d.wg.Done()
	for {
		select {
		case <-stop:
			// frames already triggered are still delivered
			for {
				select {
				case <-triggers:
					d.emit()
				default:
					return
				}
			}
		case <-triggers:
			d.emit()
		case <-tick:
			d.emit()
		}
	}
}

func (d *Device) emit() {
	d.lock.Lock()
	d.frameNum++
	n := d.frameNum
	cb := d.callback
	buf, _, err := d.render(n)
	d.lock.Unlock()
	if err != nil || cb == nil {
		return
	}
	cb(buf, n)
}

// StopLive returns once the callback goroutine has exited.
func (d *Device) StopLive() error {
	d.lock.Lock()
	if !d.live {
		d.lock.Unlock()
		return nil
	}
	d.live = false
	close(d.stop)
	d.lock.Unlock()
	d.wg.Wait()

	return nil
}

func (d *Device) SnapImage(time.Duration) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.live {
		return sdk.ErrNotLive
	}
	d.frameNum++
	buf, desc, err := d.render(d.frameNum)
	if err != nil {
		return err
	}
	d.snap, d.snapDesc = buf, desc

	return nil
}

func (d *Device) GetImage() ([]byte, sdk.ImageDescription, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.snap == nil {
		return nil, sdk.ImageDescription{}, errors.New("no image snapped")
	}

	return append([]byte(nil), d.snap...), d.snapDesc, nil
}

func (d *Device) ImageDescription() (sdk.ImageDescription, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.description(), nil
}

func (d *Device) sensor() sdk.ImageDescription {
	return sdk.ImageDescription{Width: d.sensorW, Height: d.sensorH, BitsPerPixel: 8, ColorFormat: sdk.Y800}
}

func (d *Device) description() sdk.ImageDescription {
	return d.filters.Describe(d.sensor())
}

// render draws frame n through the installed filters. Callers hold d.lock.
func (d *Device) render(n uint64) ([]byte, sdk.ImageDescription, error) {
	desc := d.sensor()
	buf := make([]byte, d.sensorW*d.sensorH)
	for y := 0; y < d.sensorH; y++ {
		for x := 0; x < d.sensorW; x++ {
			buf[y*d.sensorW+x] = byte(uint64(x+y) + n)
		}
	}
	v, err := frame.NewView(buf, desc)
	if err != nil {
		return nil, desc, err
	}
	if v, err = d.filters.Apply(v); err != nil {
		return nil, desc, err
	}

	return v.Pix, v.Description(), nil
}

func (d *Device) Release() error {
	if err := d.StopLive(); err != nil {
		return err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.open {
		return sdk.ErrReleased
	}
	d.open = false
	d.callback = nil

	return nil
}

// Filters lists the installed frame filters in installation order.
func (d *Device) Filters() []string {
	return d.filters.Names()
}

func (d *Device) Absolute(property, element string) (float64, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	v, ok := d.absolute[key(property, element)]
	return v, ok
}

func (d *Device) Value(property, element string) (int, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	v, ok := d.values[key(property, element)]
	return v, ok
}

func (d *Device) Switch(property, element string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.switches[key(property, element)]
}

func (d *Device) OnePushes(property, element string) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.onePushes[key(property, element)]
}

func (d *Device) FrameRate() float64 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.fps
}

func (d *Device) IsLive() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.live
}
