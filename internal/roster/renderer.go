// Package roster paints an activity snapshot into the roster container and
// the signup form's activity selector.
package roster

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/MarcoPoloResearchLab/roster/internal/activities"
	"github.com/MarcoPoloResearchLab/roster/internal/dom"
	"github.com/google/uuid"
)

const (
	// DeleteControlClass marks the per-participant unregister control.
	DeleteControlClass = "delete-participant"
	// DataActivity is the dataset key carrying the owning activity name.
	DataActivity = "activity"
	// DataEmail is the dataset key carrying the participant email.
	DataEmail = "email"
	// ControlTargetName is the form field a delete control submits its id under.
	ControlTargetName = "target"

	// NoParticipantsText is the placeholder row for an empty activity.
	NoParticipantsText = "No participants yet"
	// SelectPlaceholderText labels the empty selector option.
	SelectPlaceholderText = "-- Select an activity --"

	deleteControlTitle = "Unregister participant"
	deleteControlIcon  = "\U0001F5D1"
)

var (
	errMissingDocument  = errors.New("roster: document required")
	errMissingContainer = errors.New("roster: container element required")
	errMissingSelect    = errors.New("roster: select element required")
)

// IDProvider issues identifiers for delete controls.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Config wires a Renderer.
type Config struct {
	Document   *dom.Document
	IDProvider IDProvider
}

// Renderer builds the roster view. It keeps no reference to snapshots.
type Renderer struct {
	document *dom.Document
	ids      IDProvider
}

// NewRenderer validates cfg and returns a Renderer.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.Document == nil {
		return nil, errMissingDocument
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	return &Renderer{document: cfg.Document, ids: ids}, nil
}

// Render rebuilds container and selector from snapshot. Neither is touched
// unless every card builds.
func (r *Renderer) Render(container, selector *dom.Element, snapshot activities.Snapshot) error {
	if container == nil {
		return errMissingContainer
	}
	if selector == nil {
		return errMissingSelect
	}

	entries := snapshot.Entries()
	cards := make([]*dom.Element, 0, len(entries))
	options := make([]*dom.Element, 0, len(entries)+1)
	options = append(options, r.option("", SelectPlaceholderText))
	for _, entry := range entries {
		card, err := r.card(entry)
		if err != nil {
			return err
		}
		cards = append(cards, card)
		options = append(options, r.option(entry.Name.String(), entry.Name.String()))
	}

	container.RemoveChildren()
	for _, card := range cards {
		container.AppendChild(card)
	}
	selector.RemoveChildren()
	for _, option := range options {
		selector.AppendChild(option)
	}
	return nil
}

func (r *Renderer) card(entry activities.Entry) (*dom.Element, error) {
	detail := entry.Detail

	card := r.document.CreateElement("div")
	card.SetClassName("activity-card")

	heading := r.document.CreateElement("h4")
	heading.SetText(entry.Name.String())
	card.AppendChild(heading)

	description := r.document.CreateElement("p")
	description.SetText(detail.Description)
	card.AppendChild(description)

	card.AppendChild(r.labelled("Schedule:", detail.Schedule))
	card.AppendChild(r.labelled("Availability:", strconv.Itoa(detail.SpotsLeft())+" spots left"))

	section := r.document.CreateElement("div")
	section.SetClassName("participants-section")

	title := r.document.CreateElement("p")
	title.SetClassName("participants-title")
	title.SetText(fmt.Sprintf("Participants (%d/%d)", detail.ParticipantCount(), detail.MaxParticipants))
	section.AppendChild(title)

	list := r.document.CreateElement("ul")
	list.SetClassName("participants-list")
	if detail.ParticipantCount() == 0 {
		placeholder := r.document.CreateElement("li")
		placeholder.SetClassName("no-participants")
		placeholder.SetText(NoParticipantsText)
		list.AppendChild(placeholder)
	}
	for _, email := range detail.Participants {
		item, err := r.participant(entry.Name, email)
		if err != nil {
			return nil, err
		}
		list.AppendChild(item)
	}
	section.AppendChild(list)
	card.AppendChild(section)

	return card, nil
}

func (r *Renderer) participant(name activities.ActivityName, email string) (*dom.Element, error) {
	controlID, err := r.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("roster: control id: %w", err)
	}

	item := r.document.CreateElement("li")

	label := r.document.CreateElement("span")
	label.SetClassName("participant-email")
	label.SetText(email)
	item.AppendChild(label)

	control := r.document.CreateElement("button")
	control.SetClassName(DeleteControlClass)
	control.SetAttr("type", "submit")
	control.SetAttr("id", controlID)
	control.SetAttr("name", ControlTargetName)
	control.SetAttr("value", controlID)
	control.SetAttr("title", deleteControlTitle)
	control.SetDataset(DataActivity, name.String())
	control.SetDataset(DataEmail, email)
	control.SetText(deleteControlIcon)
	item.AppendChild(control)

	return item, nil
}

func (r *Renderer) labelled(label, value string) *dom.Element {
	paragraph := r.document.CreateElement("p")
	strong := r.document.CreateElement("strong")
	strong.SetText(label)
	paragraph.AppendChild(strong)
	paragraph.AppendText(" " + value)
	return paragraph
}

func (r *Renderer) option(value, text string) *dom.Element {
	option := r.document.CreateElement("option")
	option.SetAttr("value", value)
	option.SetText(text)
	return option
}
