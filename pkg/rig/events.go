package rig

import (
	"sync"
	"time"
)

const (
	EventRecordingStarted = "recording_started"
	EventRecordingStopped = "recording_stopped"
	EventExposureChanged  = "exposure_changed"
	EventError            = "error"
)

type Event struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Camera  *int      `json:"camera,omitempty"`
	Message string    `json:"message,omitempty"`
	Status  *Status   `json:"status,omitempty"`
}

// broker fans events out to subscribers. A subscriber that does not keep up
// misses events instead of stalling the rig.
type broker struct {
	lock sync.Mutex
	subs map[chan Event]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[chan Event]struct{})}
}

func (b *broker) subscribe(size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	b.lock.Lock()
	b.subs[ch] = struct{}{}
	b.lock.Unlock()

	return ch, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *broker) publish(e Event) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			logger.Debugf("rig: subscriber is slow, dropping %s event", e.Type)
		}
	}
}

func (b *broker) closeAll() {
	b.lock.Lock()
	defer b.lock.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
