package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"ephys-cam/pkg/utils"
)

var ErrInvalidRate = errors.New("frame rate must be positive")

// Trigger is anything that can fire one software trigger pulse.
type Trigger interface {
	SoftwareTrigger() error
}

// Scheduler pulses a set of triggers at a fixed rate so that every camera of
// a rig exposes on the same tick.
type Scheduler struct {
	t        *time.Ticker
	lock     sync.Mutex
	triggers []Trigger
	pulses   int
	failures int
	logger   *zap.SugaredLogger
}

func New(ctx context.Context) *Scheduler {
	t := time.NewTicker(time.Second)
	t.Stop()

	s := &Scheduler{
		t:      t,
		logger: utils.GetLogger(),
	}
	s.startDeal(ctx)

	return s
}

func (s *Scheduler) Begin(fps float64, triggers ...Trigger) error {
	if fps <= 0 {
		return ErrInvalidRate
	}
	s.lock.Lock()
	s.triggers = triggers
	s.pulses = 0
	s.failures = 0
	s.lock.Unlock()
	s.t.Reset(time.Duration(float64(time.Second) / fps))
	s.logger.Infof("scheduler: started at %.2f fps for %d trigger(s)", fps, len(triggers))

	return nil
}

func (s *Scheduler) Stop() {
	s.t.Stop()
	s.lock.Lock()
	s.triggers = nil
	s.lock.Unlock()
	s.logger.Info("scheduler: stopped")
}

func (s *Scheduler) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.triggers != nil
}

// Pulses returns how many ticks were fired and how many trigger calls failed
// since the last Begin.
func (s *Scheduler) Pulses() (pulses, failures int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.pulses, s.failures
}

func (s *Scheduler) startDeal(ctx context.Context) {
	go func(s *Scheduler) {
		for {
			select {
			case <-s.t.C:
				s.lock.Lock()
				if s.triggers == nil {
					s.lock.Unlock()
					continue
				}
				s.pulses++
				for _, tr := range s.triggers {
					if err := tr.SoftwareTrigger(); err != nil {
						s.failures++
						s.logger.Errorf("scheduler: trigger err: %s", err)
					}
				}
				s.lock.Unlock()
			case <-ctx.Done():
				s.t.Stop()
				s.lock.Lock()
				s.triggers = nil
				s.lock.Unlock()
				s.logger.Info("scheduler: context done")
				return
			}
		}
	}(s)
}
