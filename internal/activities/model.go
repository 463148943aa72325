package activities

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidActivityName indicates that an activity name is empty.
	ErrInvalidActivityName = errors.New("activities: invalid activity name")
	// ErrDuplicateActivity indicates that a snapshot received the same name twice.
	ErrDuplicateActivity = errors.New("activities: duplicate activity name")
	// ErrMalformedSnapshot indicates that a snapshot payload could not be decoded.
	ErrMalformedSnapshot = errors.New("activities: malformed snapshot")
)

// ActivityName identifies an activity within a snapshot and in request paths.
type ActivityName string

// NewActivityName validates raw input and returns an ActivityName.
// Names are keys, so surrounding whitespace is significant and preserved.
func NewActivityName(rawInput string) (ActivityName, error) {
	if rawInput == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidActivityName)
	}
	return ActivityName(rawInput), nil
}

// String returns the underlying name.
func (name ActivityName) String() string {
	return string(name)
}

// Detail describes one activity as served by GET /activities.
type Detail struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
}

// ParticipantCount returns the number of registered participants, duplicates included.
func (detail Detail) ParticipantCount() int {
	return len(detail.Participants)
}

// SpotsLeft returns max_participants minus the participant count. The value
// is not clamped and goes negative when the backend over-allocates.
func (detail Detail) SpotsLeft() int {
	return detail.MaxParticipants - len(detail.Participants)
}

func (detail Detail) clone() Detail {
	copied := detail
	copied.Participants = append([]string(nil), detail.Participants...)
	return copied
}

// Entry pairs an activity name with its detail.
type Entry struct {
	Name   ActivityName
	Detail Detail
}

// Snapshot is a point-in-time, ordered view of every activity.
// The zero value is an empty snapshot.
type Snapshot struct {
	entries []Entry
	index   map[ActivityName]int
}

// NewSnapshot builds a snapshot preserving the order of the supplied entries.
func NewSnapshot(entries ...Entry) (Snapshot, error) {
	snapshot := Snapshot{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[ActivityName]int, len(entries)),
	}
	for _, entry := range entries {
		if entry.Name == "" {
			return Snapshot{}, fmt.Errorf("%w: empty", ErrInvalidActivityName)
		}
		if _, exists := snapshot.index[entry.Name]; exists {
			return Snapshot{}, fmt.Errorf("%w: %q", ErrDuplicateActivity, entry.Name)
		}
		snapshot.index[entry.Name] = len(snapshot.entries)
		snapshot.entries = append(snapshot.entries, Entry{Name: entry.Name, Detail: entry.Detail.clone()})
	}
	return snapshot, nil
}

// Len returns the number of activities.
func (snapshot Snapshot) Len() int {
	return len(snapshot.entries)
}

// Entries returns a copy of the entries in display order.
func (snapshot Snapshot) Entries() []Entry {
	copies := make([]Entry, 0, len(snapshot.entries))
	for _, entry := range snapshot.entries {
		copies = append(copies, Entry{Name: entry.Name, Detail: entry.Detail.clone()})
	}
	return copies
}

// Names returns the activity names in display order.
func (snapshot Snapshot) Names() []ActivityName {
	names := make([]ActivityName, 0, len(snapshot.entries))
	for _, entry := range snapshot.entries {
		names = append(names, entry.Name)
	}
	return names
}

// Lookup returns the detail stored for name.
func (snapshot Snapshot) Lookup(name ActivityName) (Detail, bool) {
	position, ok := snapshot.index[name]
	if !ok {
		return Detail{}, false
	}
	return snapshot.entries[position].Detail.clone(), true
}
