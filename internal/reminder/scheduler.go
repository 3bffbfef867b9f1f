// Package reminder schedules local "task is coming up" notifications.
package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskmanager/internal/logger"
)

// Service is what the store uses. Handles are opaque.
type Service interface {
	// Schedule returns an empty handle when the reminder moment has already passed.
	Schedule(ctx context.Context, taskID, title string, due time.Time) (string, error)
	Cancel(handle string)
	Active(handle string) bool
}

// Reminder is handed to every delivery channel when it fires.
type Reminder struct {
	Handle string
	TaskID string
	Title  string
	DueAt  time.Time
	Lead   time.Duration
}

// Delivery is one output channel (log, banner, Telegram, email).
type Delivery interface {
	Deliver(ctx context.Context, r Reminder) error
}

const deliverTimeout = 30 * time.Second

// Scheduler keeps in-process timers. Handles do not survive a restart;
// the store re-arms reminders on load.
type Scheduler struct {
	mu         sync.Mutex
	timers     map[string]*time.Timer
	lead       time.Duration
	deliveries []Delivery
	now        func() time.Time
	log        *zap.SugaredLogger
}

// NewScheduler fires each reminder lead before the task's due moment.
func NewScheduler(lead time.Duration, log *zap.SugaredLogger, deliveries ...Delivery) *Scheduler {
	return &Scheduler{
		timers:     make(map[string]*time.Timer),
		lead:       lead,
		deliveries: deliveries,
		now:        time.Now,
		log:        logger.OrNop(log),
	}
}

func (s *Scheduler) Schedule(_ context.Context, taskID, title string, due time.Time) (string, error) {
	fireAt := due.Add(-s.lead)
	wait := fireAt.Sub(s.now())
	if wait <= 0 {
		s.log.Debugf("[reminder][skip] task=%s fire_at=%s already passed", taskID, fireAt.Format(time.RFC3339))
		return "", nil
	}

	r := Reminder{
		Handle: uuid.NewString(),
		TaskID: taskID,
		Title:  title,
		DueAt:  due,
		Lead:   s.lead,
	}
	s.mu.Lock()
	s.timers[r.Handle] = time.AfterFunc(wait, func() { s.fire(r) })
	s.mu.Unlock()

	s.log.Infof("[reminder][scheduled] task=%s handle=%s fire_at=%s", taskID, r.Handle, fireAt.Format(time.RFC3339))
	return r.Handle, nil
}

func (s *Scheduler) Cancel(handle string) {
	if handle == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[handle]; ok {
		t.Stop()
		delete(s.timers, handle)
		s.log.Debugf("[reminder][cancel] handle=%s", handle)
	}
}

func (s *Scheduler) Active(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[handle]
	return ok
}

// Stop cancels every pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
	}
}

func (s *Scheduler) fire(r Reminder) {
	s.mu.Lock()
	if _, ok := s.timers[r.Handle]; !ok {
		// отменён между срабатыванием таймера и захватом лока
		s.mu.Unlock()
		return
	}
	delete(s.timers, r.Handle)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	for _, d := range s.deliveries {
		if err := d.Deliver(ctx, r); err != nil {
			s.log.Warnf("[reminder][deliver][err] task=%s handle=%s: %v", r.TaskID, r.Handle, err)
		}
	}
}
