package dom

import "golang.org/x/net/html"

const (
	// EventClick is dispatched for activations of any element.
	EventClick = "click"
	// EventSubmit is dispatched on a form being submitted.
	EventSubmit = "submit"
)

// Listener handles a dispatched event.
type Listener func(*Event)

// Event travels from its target up through every ancestor and finally to
// document-level listeners.
type Event struct {
	Type          string
	Target        *Element
	CurrentTarget *Element

	defaultPrevented bool
	stopped          bool
}

// NewEvent constructs an event aimed at target.
func NewEvent(eventType string, target *Element) *Event {
	return &Event{Type: eventType, Target: target}
}

// PreventDefault records that the default action must not run.
func (event *Event) PreventDefault() {
	event.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (event *Event) DefaultPrevented() bool {
	return event.defaultPrevented
}

// StopPropagation stops the event from reaching further ancestors.
func (event *Event) StopPropagation() {
	event.stopped = true
}

// AddEventListener registers listener at document level. Document listeners
// see every bubbling event, which is how delegated handlers are attached.
func (document *Document) AddEventListener(eventType string, listener Listener) {
	document.documentListeners[eventType] = append(document.documentListeners[eventType], listener)
}

// Dispatch delivers event to listeners along the target's ancestor chain and
// returns false when a listener prevented the default action.
func (document *Document) Dispatch(event *Event) bool {
	if event == nil || event.Target == nil {
		return true
	}
	for node := event.Target.node; node != nil && !event.stopped; node = node.Parent {
		if node.Type != html.ElementNode {
			continue
		}
		listeners := append([]Listener(nil), document.listeners[node][event.Type]...)
		if len(listeners) == 0 {
			continue
		}
		event.CurrentTarget = document.wrap(node)
		for _, listener := range listeners {
			listener(event)
		}
	}
	if !event.stopped {
		event.CurrentTarget = nil
		for _, listener := range append([]Listener(nil), document.documentListeners[event.Type]...) {
			listener(event)
		}
	}
	return !event.defaultPrevented
}
