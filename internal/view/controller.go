// Package view runs the roster page: it owns the document on a single event
// loop, loads the roster, handles signup submissions and delegated delete
// clicks, and re-fetches after every successful mutation.
package view

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/activities"
	"github.com/MarcoPoloResearchLab/roster/internal/client"
	"github.com/MarcoPoloResearchLab/roster/internal/dom"
	"github.com/MarcoPoloResearchLab/roster/internal/notifier"
	"github.com/MarcoPoloResearchLab/roster/internal/roster"
	"go.uber.org/zap"
)

// Element ids the page skeleton must provide.
const (
	ElementActivitiesList = "activities-list"
	ElementActivitySelect = "activity"
	ElementSignupForm     = "signup-form"
	ElementEmailInput     = "email"
	ElementMessage        = "message"
)

const (
	// LoadFailureText replaces the roster when the snapshot cannot be loaded.
	LoadFailureText = "Failed to load activities. Please try again later."
	// DefaultUnregisterMessage is shown when an unregister succeeds without a message.
	DefaultUnregisterMessage = "Participant successfully unregistered."

	defaultInboxSize = 64

	opLoad       = "view.load"
	opRegister   = "view.register"
	opUnregister = "view.unregister"
)

//go:embed skeleton.html
var skeletonMarkup string

var (
	// ErrMissingElement indicates that the skeleton lacks a required element.
	ErrMissingElement = errors.New("view: required element missing")
	// ErrNotStarted indicates that the event loop has not been started.
	ErrNotStarted = errors.New("view: controller not started")
	// ErrStopped indicates that the event loop has exited.
	ErrStopped = errors.New("view: controller stopped")

	errMissingDocument = errors.New("view: document required")
	errMissingClient   = errors.New("view: activities client required")
	errAlreadyStarted  = errors.New("view: controller already started")
)

// NewSkeletonDocument parses the bundled page skeleton.
func NewSkeletonDocument() (*dom.Document, error) {
	return dom.ParseString(skeletonMarkup)
}

// ActivitiesClient is the backend surface the controller needs.
type ActivitiesClient interface {
	FetchActivities(ctx context.Context) (activities.Snapshot, error)
	Register(ctx context.Context, name activities.ActivityName, email string) client.Outcome
	Unregister(ctx context.Context, name activities.ActivityName, email string) client.Outcome
}

// Phase is the controller's load state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLoading    Phase = "loading"
	PhaseRendered   Phase = "rendered"
	PhaseLoadFailed Phase = "load_failed"
)

// State is the explicit application state behind the rendered page.
type State struct {
	Phase        Phase                 `json:"phase"`
	Snapshot     activities.Snapshot   `json:"snapshot"`
	HasSnapshot  bool                  `json:"has_snapshot"`
	Notification notifier.Notification `json:"notification"`
	LastError    string                `json:"last_error,omitempty"`
	// FetchGeneration is the generation of the last applied fetch.
	FetchGeneration uint64 `json:"fetch_generation"`
}

// ChangeKind names what part of the page changed.
type ChangeKind string

const (
	ChangeRoster       ChangeKind = "roster"
	ChangeNotification ChangeKind = "notification"
)

// Change describes one observable page update.
type Change struct {
	Kind  ChangeKind
	Phase Phase
	At    time.Time
}

// Config wires a Controller.
type Config struct {
	Document   *dom.Document
	Client     ActivitiesClient
	Scheduler  notifier.Scheduler
	IDProvider roster.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
	// OnChange runs on the event loop after each repaint or notification change.
	OnChange  func(Change)
	InboxSize int
}

// Controller owns the document and serializes every access to it.
type Controller struct {
	document *dom.Document
	client   ActivitiesClient
	renderer *roster.Renderer
	notifier *notifier.Notifier
	clock    func() time.Time
	logger   *zap.Logger
	onChange func(Change)

	container  *dom.Element
	selector   *dom.Element
	form       *dom.Element
	emailInput *dom.Element

	inbox   chan func()
	started atomic.Bool
	ctx     context.Context
	done    chan struct{}

	// pending and idleWaiters are owned by the event loop.
	pending     int
	idleWaiters []chan struct{}

	state        State
	fetchIssued  uint64
	fetchApplied uint64
}

// New resolves the skeleton elements and attaches the submit and delegated
// click listeners. Nothing is fetched until Start.
func New(cfg Config) (*Controller, error) {
	if cfg.Document == nil {
		return nil, errMissingDocument
	}
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = notifier.NewSystemScheduler()
	}
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}

	elements := make(map[string]*dom.Element)
	for _, id := range []string{ElementActivitiesList, ElementActivitySelect, ElementSignupForm, ElementEmailInput, ElementMessage} {
		element := cfg.Document.ElementByID(id)
		if element == nil {
			return nil, fmt.Errorf("%w: #%s", ErrMissingElement, id)
		}
		elements[id] = element
	}

	controller := &Controller{
		document:   cfg.Document,
		client:     cfg.Client,
		clock:      clock,
		logger:     logger,
		onChange:   cfg.OnChange,
		container:  elements[ElementActivitiesList],
		selector:   elements[ElementActivitySelect],
		form:       elements[ElementSignupForm],
		emailInput: elements[ElementEmailInput],
		inbox:      make(chan func(), inboxSize),
		done:       make(chan struct{}),
		state:      State{Phase: PhaseIdle},
	}

	renderer, err := roster.NewRenderer(roster.Config{Document: cfg.Document, IDProvider: cfg.IDProvider})
	if err != nil {
		return nil, err
	}
	controller.renderer = renderer

	messages, err := notifier.New(notifier.Config{
		Element:   elements[ElementMessage],
		Scheduler: scheduler,
		Dispatch:  func(fn func()) { controller.enqueue(fn) },
		Clock:     clock,
		Logger:    logger,
		OnChange: func(notifier.Notification) {
			controller.changed(ChangeNotification)
		},
	})
	if err != nil {
		return nil, err
	}
	controller.notifier = messages

	controller.form.AddEventListener(dom.EventSubmit, controller.handleSubmit)
	cfg.Document.AddEventListener(dom.EventClick, controller.handleClick)

	return controller, nil
}

// Start begins the initial load and runs the event loop until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}
	c.ctx = ctx
	c.load()
	go c.loop()
	return nil
}

// Done is closed once the event loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Do runs fn on the event loop and waits for it to return.
func (c *Controller) Do(ctx context.Context, fn func(*dom.Document)) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	reply := make(chan struct{})
	task := func() {
		defer close(reply)
		fn(c.document)
	}
	select {
	case c.inbox <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Settle waits until no request started by the controller is still pending,
// including the re-fetches triggered by completed mutations.
func (c *Controller) Settle(ctx context.Context) error {
	var idle chan struct{}
	err := c.Do(ctx, func(*dom.Document) {
		idle = make(chan struct{})
		if c.pending == 0 {
			close(idle)
			return
		}
		c.idleWaiters = append(c.idleWaiters, idle)
	})
	if err != nil {
		return err
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Submit fills the signup form and submits it, as a user would.
func (c *Controller) Submit(ctx context.Context, activityName, email string) error {
	return c.Do(ctx, func(document *dom.Document) {
		c.selector.SetValue(activityName)
		c.emailInput.SetValue(email)
		document.Dispatch(dom.NewEvent(dom.EventSubmit, c.form))
	})
}

// Click dispatches a click on the element with targetID. Unknown ids are ignored.
func (c *Controller) Click(ctx context.Context, targetID string) error {
	return c.Do(ctx, func(document *dom.Document) {
		target := document.ElementByID(targetID)
		if target == nil {
			return
		}
		document.Dispatch(dom.NewEvent(dom.EventClick, target))
	})
}

// State returns a copy of the current state.
func (c *Controller) State(ctx context.Context) (State, error) {
	var state State
	err := c.Do(ctx, func(*dom.Document) {
		state = c.state
		state.Notification = c.notifier.Current()
	})
	return state, err
}

// RenderHTML returns the current document markup.
func (c *Controller) RenderHTML(ctx context.Context) ([]byte, error) {
	var buffer bytes.Buffer
	var renderErr error
	err := c.Do(ctx, func(document *dom.Document) {
		renderErr = document.Render(&buffer)
	})
	if err != nil {
		return nil, err
	}
	if renderErr != nil {
		return nil, renderErr
	}
	return buffer.Bytes(), nil
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case task := <-c.inbox:
			task()
		}
	}
}

func (c *Controller) enqueue(task func()) bool {
	select {
	case c.inbox <- task:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// async runs work off the loop and applies its result on the loop. It must
// be called from the loop. The pending count drops only after the result has
// been applied, so follow-up requests started while applying keep Settle
// waiting.
func (c *Controller) async(work func(context.Context) func()) {
	c.pending++
	go func() {
		apply := work(c.ctx)
		c.enqueue(func() {
			defer c.finishPending()
			apply()
		})
	}()
}

func (c *Controller) finishPending() {
	c.pending--
	if c.pending > 0 {
		return
	}
	for _, waiter := range c.idleWaiters {
		close(waiter)
	}
	c.idleWaiters = nil
}

func (c *Controller) load() {
	c.fetchIssued++
	generation := c.fetchIssued
	c.state.Phase = PhaseLoading
	c.async(func(ctx context.Context) func() {
		snapshot, err := c.client.FetchActivities(ctx)
		return func() {
			c.applyFetch(generation, snapshot, err)
		}
	})
}

func (c *Controller) applyFetch(generation uint64, snapshot activities.Snapshot, fetchErr error) {
	if generation <= c.fetchApplied {
		c.logger.Debug("stale fetch discarded",
			zap.Uint64("generation", generation),
			zap.Uint64("applied", c.fetchApplied))
		return
	}
	c.fetchApplied = generation
	c.state.FetchGeneration = generation

	if fetchErr != nil {
		c.showLoadFailure("fetch_failed", fetchErr)
		return
	}
	if err := c.renderer.Render(c.container, c.selector, snapshot); err != nil {
		c.showLoadFailure("render_failed", err)
		return
	}

	c.state.Phase = PhaseRendered
	c.state.Snapshot = snapshot
	c.state.HasSnapshot = true
	c.state.LastError = ""
	c.changed(ChangeRoster)
}

// showLoadFailure replaces the roster with the failure message. The selector
// keeps whatever options it had.
func (c *Controller) showLoadFailure(reason string, err error) {
	c.logError(opLoad, reason, err)
	c.container.RemoveChildren()
	message := c.document.CreateElement("p")
	message.SetText(LoadFailureText)
	c.container.AppendChild(message)

	c.state.Phase = PhaseLoadFailed
	c.state.LastError = err.Error()
	c.changed(ChangeRoster)
}

func (c *Controller) handleSubmit(event *dom.Event) {
	event.PreventDefault()

	name := activities.ActivityName(c.selector.Value())
	email := c.emailInput.Value()
	c.async(func(ctx context.Context) func() {
		outcome := c.client.Register(ctx, name, email)
		return func() {
			c.finishRegister(outcome)
		}
	})
}

func (c *Controller) finishRegister(outcome client.Outcome) {
	if outcome.OK {
		c.notifier.Notify(outcome.Message, notifier.KindSuccess)
		c.form.Reset()
		c.load()
		return
	}
	detail := outcome.Detail
	if detail == "" {
		detail = client.DefaultRegisterDetail
	}
	c.logMutationFailure(opRegister, outcome)
	c.notifier.Notify(detail, notifier.KindError)
}

// handleClick is the single delegated listener for every delete control,
// including controls created by later repaints.
func (c *Controller) handleClick(event *dom.Event) {
	control := event.Target.Closest(dom.ByClass(roster.DeleteControlClass))
	if control == nil {
		return
	}

	name := activities.ActivityName(control.Dataset(roster.DataActivity))
	email := control.Dataset(roster.DataEmail)
	c.async(func(ctx context.Context) func() {
		outcome := c.client.Unregister(ctx, name, email)
		return func() {
			c.finishUnregister(outcome)
		}
	})
}

func (c *Controller) finishUnregister(outcome client.Outcome) {
	if outcome.OK {
		message := outcome.Message
		if message == "" {
			message = DefaultUnregisterMessage
		}
		c.notifier.Notify(message, notifier.KindSuccess)
		c.load()
		return
	}
	detail := outcome.Detail
	if detail == "" {
		detail = client.DefaultUnregisterDetail
	}
	c.logMutationFailure(opUnregister, outcome)
	c.notifier.Notify(detail, notifier.KindError)
}

func (c *Controller) changed(kind ChangeKind) {
	if c.onChange == nil {
		return
	}
	c.onChange(Change{Kind: kind, Phase: c.state.Phase, At: c.clock().UTC()})
}

func (c *Controller) logMutationFailure(operation string, outcome client.Outcome) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("failure", string(outcome.Failure)),
		zap.Int("status", outcome.Status),
	}
	if outcome.Err != nil {
		fields = append(fields, zap.Error(outcome.Err))
	}
	if outcome.Failure == client.FailureHTTP {
		c.logger.Warn("mutation rejected", fields...)
		return
	}
	c.logger.Error("mutation failed", fields...)
}

func (c *Controller) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("view operation failed", attrs...)
}
