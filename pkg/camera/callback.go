package camera

import (
	"errors"
	"slices"
	"sync"
	"time"

	"ephys-cam/pkg/frame"
	"ephys-cam/pkg/sdk"
	"ephys-cam/pkg/video"
)

const DefaultQueueSize = 64

var ErrSinkAttached = errors.New("a video sink is already attached")

// Timestamps is the per-frame log of one camera, kept for offline latency
// analysis. Only written frames are logged, so CallbackTimes, SavedTimes and
// FrameNumbers line up index by index.
type Timestamps struct {
	CameraIndex   int         `json:"cameraIndex"`
	TriggerTimes  []time.Time `json:"triggerTimes"`
	CallbackTimes []time.Time `json:"callbackTimes"`
	FrameNumbers  []uint64    `json:"frameNumbers"`
	SavedTimes    []time.Time `json:"savedTimes"`
}

type Stats struct {
	Received int `json:"received"`
	Saved    int `json:"saved"`
	// Dropped counts frames without usable geometry, without a sink or with a
	// short buffer.
	Dropped int `json:"dropped"`
	// Late counts frames delivered after the sink was detached.
	Late   int `json:"late"`
	Failed int `json:"failed"`
}

type pending struct {
	buf     []byte
	desc    sdk.ImageDescription
	number  uint64
	arrived time.Time
}

// CallbackContext is the state behind one camera's frame callback. The SDK
// thread only records the arrival and hands a copy of the buffer to a bounded
// queue; a single consumer goroutine flips and writes frames in order.
type CallbackContext struct {
	index     int
	queueSize int
	now       func() time.Time

	lock    sync.Mutex
	ts      Timestamps
	stats   Stats
	desc    sdk.ImageDescription
	hasDesc bool

	// sendLock orders queue sends against detach.
	sendLock sync.RWMutex
	queue    chan pending
	done     chan struct{}
	sink     video.Sink
	detached bool
}

func NewCallbackContext(cameraIndex, queueSize int) *CallbackContext {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}

	return &CallbackContext{
		index:     cameraIndex,
		queueSize: queueSize,
		now:       time.Now,
		ts:        Timestamps{CameraIndex: cameraIndex},
	}
}

func (c *CallbackContext) SetDescription(d sdk.ImageDescription) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.desc = d
	c.hasDesc = true
}

func (c *CallbackContext) Description() (sdk.ImageDescription, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.desc, c.hasDesc
}

func (c *CallbackContext) RecordTrigger(t time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ts.TriggerTimes = append(c.ts.TriggerTimes, t)
}

// OnFrame is the sdk.FrameReadyFunc. It blocks while the queue is full, which
// leaves further frames queued inside the SDK.
func (c *CallbackContext) OnFrame(buf []byte, frameNumber uint64) {
	arrived := c.now()
	c.lock.Lock()
	c.stats.Received++
	desc, ok := c.desc, c.hasDesc
	c.lock.Unlock()

	size := 0
	if ok {
		size = frame.DescriptionSize(desc)
	}
	if size <= 0 {
		c.drop(frameNumber, "no image geometry")
		return
	}
	if len(buf) < size {
		c.drop(frameNumber, "short buffer")
		return
	}

	c.sendLock.RLock()
	defer c.sendLock.RUnlock()
	if c.queue == nil {
		if c.detached {
			c.late(frameNumber)
		} else {
			c.drop(frameNumber, "no video sink")
		}
		return
	}
	c.queue <- pending{
		buf:     append([]byte(nil), buf[:size]...),
		desc:    desc,
		number:  frameNumber,
		arrived: arrived,
	}
}

func (c *CallbackContext) drop(frameNumber uint64, reason string) {
	c.lock.Lock()
	c.stats.Dropped++
	c.lock.Unlock()
	logger.Debugf("camera %d: drop frame %d: %s", c.index, frameNumber, reason)
}

func (c *CallbackContext) late(frameNumber uint64) {
	c.lock.Lock()
	c.stats.Late++
	c.lock.Unlock()
	logger.Warnf("camera %d: frame %d arrived after the video sink was detached", c.index, frameNumber)
}

// Attach starts the consumer writing to sink.
func (c *CallbackContext) Attach(sink video.Sink) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	if c.queue != nil {
		return ErrSinkAttached
	}
	c.queue = make(chan pending, c.queueSize)
	c.done = make(chan struct{})
	c.sink = sink
	c.detached = false
	go c.consume(c.queue, sink, c.done)

	return nil
}

// Detach stops accepting frames, waits until every queued frame is written
// and returns the sink, or nil when none was attached.
func (c *CallbackContext) Detach() video.Sink {
	c.sendLock.Lock()
	if c.queue == nil {
		c.sendLock.Unlock()
		return nil
	}
	close(c.queue)
	c.queue = nil
	c.detached = true
	sink, done := c.sink, c.done
	c.sink = nil
	c.sendLock.Unlock()

	<-done

	return sink
}

func (c *CallbackContext) consume(queue <-chan pending, sink video.Sink, done chan<- struct{}) {
	defer close(done)
	for p := range queue {
		v, err := frame.NewView(p.buf, p.desc)
		if err != nil {
			c.fail(p.number, err)
			continue
		}
		v.FlipVertical()
		if err = sink.WriteFrame(v); err != nil {
			c.fail(p.number, err)
			continue
		}
		c.lock.Lock()
		c.ts.CallbackTimes = append(c.ts.CallbackTimes, p.arrived)
		c.ts.SavedTimes = append(c.ts.SavedTimes, c.now())
		c.ts.FrameNumbers = append(c.ts.FrameNumbers, p.number)
		c.stats.Saved++
		c.lock.Unlock()
	}
}

func (c *CallbackContext) fail(frameNumber uint64, err error) {
	c.lock.Lock()
	c.stats.Failed++
	c.lock.Unlock()
	logger.Errorf("camera %d: write frame %d: %s", c.index, frameNumber, err)
}

func (c *CallbackContext) Timestamps() Timestamps {
	c.lock.Lock()
	defer c.lock.Unlock()

	return Timestamps{
		CameraIndex:   c.ts.CameraIndex,
		TriggerTimes:  slices.Clone(c.ts.TriggerTimes),
		CallbackTimes: slices.Clone(c.ts.CallbackTimes),
		FrameNumbers:  slices.Clone(c.ts.FrameNumbers),
		SavedTimes:    slices.Clone(c.ts.SavedTimes),
	}
}

func (c *CallbackContext) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}

// Reset clears timestamps and counters between recordings.
func (c *CallbackContext) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ts = Timestamps{CameraIndex: c.index}
	c.stats = Stats{}
}
