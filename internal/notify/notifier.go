// Package notify delivers user-visible banners (toasts) to whatever UI is attached.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"taskmanager/internal/logger"
)

const (
	DefaultDuration = 3000 * time.Millisecond

	ColorError = "red"
	ColorInfo  = "orange"
	ColorOK    = "green"
)

// Banner is one notification.
type Banner struct {
	Message  string        `json:"message"`
	Duration time.Duration `json:"-"`
	Color    string        `json:"color"`
	// DurationMs mirrors Duration on the wire.
	DurationMs int64     `json:"durationMs"`
	At         time.Time `json:"at"`
}

// Notifier shows a banner. Implementations must not block for long.
type Notifier interface {
	Notify(b Banner)
}

// Error / Info / OK are shorthands with the default duration.
func Error(n Notifier, msg string) { n.Notify(Banner{Message: msg, Color: ColorError}) }
func Info(n Notifier, msg string)  { n.Notify(Banner{Message: msg, Color: ColorInfo}) }
func OK(n Notifier, msg string)    { n.Notify(Banner{Message: msg, Color: ColorOK}) }

func normalize(b Banner) Banner {
	if b.Duration <= 0 {
		b.Duration = DefaultDuration
	}
	if b.Color == "" {
		b.Color = ColorError
	}
	b.DurationMs = b.Duration.Milliseconds()
	if b.At.IsZero() {
		b.At = time.Now()
	}
	return b
}

// LogNotifier writes banners to the log.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: logger.OrNop(log)}
}

func (n *LogNotifier) Notify(b Banner) {
	b = normalize(b)
	if b.Color == ColorError {
		n.log.Warnf("[notify] %s", b.Message)
		return
	}
	n.log.Infof("[notify] %s", b.Message)
}

// Multi fans a banner out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(b Banner) {
	b = normalize(b)
	for _, n := range m {
		if n != nil {
			n.Notify(b)
		}
	}
}

// Recorder keeps every banner; used in tests and by the CLI.
type Recorder struct {
	mu      sync.Mutex
	banners []Banner
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Notify(b Banner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banners = append(r.banners, normalize(b))
}

func (r *Recorder) Banners() []Banner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Banner(nil), r.banners...)
}

// Messages returns only the texts, in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.banners))
	for _, b := range r.banners {
		out = append(out, b.Message)
	}
	return out
}
