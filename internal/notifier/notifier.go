// Package notifier shows a single transient status message on a document
// element and hides it after a fixed delay.
package notifier

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/dom"
	"go.uber.org/zap"
)

// HideDelay is how long a notification stays visible after Notify.
const HideDelay = 5000 * time.Millisecond

const hiddenClass = "hidden"

var (
	errMissingElement   = errors.New("notifier: message element required")
	errMissingScheduler = errors.New("notifier: scheduler required")
	errMissingDispatch  = errors.New("notifier: dispatch function required")
)

// Kind classifies a notification.
type Kind string

const (
	// KindSuccess marks a completed operation.
	KindSuccess Kind = "success"
	// KindError marks a failed operation.
	KindError Kind = "error"
)

// Notification is the state of the single message slot.
type Notification struct {
	Text      string    `json:"text"`
	Kind      Kind      `json:"kind"`
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"created_at"`
}

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after delay, on any goroutine.
type Scheduler interface {
	AfterFunc(delay time.Duration, fn func()) Timer
}

type systemScheduler struct{}

// NewSystemScheduler returns a Scheduler backed by time.AfterFunc.
func NewSystemScheduler() Scheduler {
	return systemScheduler{}
}

func (systemScheduler) AfterFunc(delay time.Duration, fn func()) Timer {
	return time.AfterFunc(delay, fn)
}

// Config wires a Notifier.
type Config struct {
	Element   *dom.Element
	Scheduler Scheduler
	// Dispatch runs fn on the goroutine that owns Element.
	Dispatch func(fn func())
	Clock    func() time.Time
	Logger   *zap.Logger
	// OnChange is invoked on the owning goroutine after every show or hide.
	OnChange func(Notification)
}

// Notifier owns the message element. All methods must be called from the
// goroutine that owns the document.
type Notifier struct {
	element    *dom.Element
	scheduler  Scheduler
	dispatch   func(fn func())
	clock      func() time.Time
	logger     *zap.Logger
	onChange   func(Notification)
	current    Notification
	pending    Timer
	generation uint64
}

// New validates cfg and returns a Notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Element == nil {
		return nil, errMissingElement
	}
	if cfg.Scheduler == nil {
		return nil, errMissingScheduler
	}
	if cfg.Dispatch == nil {
		return nil, errMissingDispatch
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		element:   cfg.Element,
		scheduler: cfg.Scheduler,
		dispatch:  cfg.Dispatch,
		clock:     clock,
		logger:    logger,
		onChange:  cfg.OnChange,
	}, nil
}

// Notify replaces whatever message is showing and schedules its hide
// HideDelay from now. A previously scheduled hide is cancelled.
func (n *Notifier) Notify(text string, kind Kind) {
	if n.pending != nil {
		n.pending.Stop()
	}
	n.generation++
	generation := n.generation

	n.current = Notification{
		Text:      text,
		Kind:      kind,
		Visible:   true,
		CreatedAt: n.clock().UTC(),
	}
	n.element.SetText(text)
	n.element.SetClassName(string(kind))
	n.logger.Debug("notification shown", zap.String("kind", string(kind)), zap.String("text", text))
	n.changed()

	n.pending = n.scheduler.AfterFunc(HideDelay, func() {
		n.dispatch(func() {
			n.hide(generation)
		})
	})
}

// Current returns the notification state.
func (n *Notifier) Current() Notification {
	return n.current
}

func (n *Notifier) hide(generation uint64) {
	// a stop that lost the race with the timer still lands here
	if generation != n.generation {
		return
	}
	n.pending = nil
	n.current.Visible = false
	n.element.AddClass(hiddenClass)
	n.changed()
}

func (n *Notifier) changed() {
	if n.onChange != nil {
		n.onChange(n.current)
	}
}
