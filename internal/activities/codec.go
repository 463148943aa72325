package activities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type wireDetail struct {
	Description     *string   `json:"description"`
	Schedule        *string   `json:"schedule"`
	MaxParticipants *int      `json:"max_participants"`
	Participants    *[]string `json:"participants"`
}

func (wire wireDetail) detail(name string) (Detail, error) {
	switch {
	case wire.Description == nil:
		return Detail{}, fmt.Errorf("%w: %q missing description", ErrMalformedSnapshot, name)
	case wire.Schedule == nil:
		return Detail{}, fmt.Errorf("%w: %q missing schedule", ErrMalformedSnapshot, name)
	case wire.MaxParticipants == nil:
		return Detail{}, fmt.Errorf("%w: %q missing max_participants", ErrMalformedSnapshot, name)
	case *wire.MaxParticipants < 0:
		return Detail{}, fmt.Errorf("%w: %q has negative max_participants", ErrMalformedSnapshot, name)
	case wire.Participants == nil:
		return Detail{}, fmt.Errorf("%w: %q missing participants", ErrMalformedSnapshot, name)
	}
	return Detail{
		Description:     *wire.Description,
		Schedule:        *wire.Schedule,
		MaxParticipants: *wire.MaxParticipants,
		Participants:    append([]string(nil), (*wire.Participants)...),
	}, nil
}

// DecodeSnapshot reads a JSON object of activities from reader, keeping the
// key order of the payload.
func DecodeSnapshot(reader io.Reader) (Snapshot, error) {
	payload, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	var snapshot Snapshot
	if err := snapshot.UnmarshalJSON(payload); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// UnmarshalJSON decodes the activity mapping in document order. A repeated
// key keeps its first position and takes the last value.
func (snapshot *Snapshot) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object", ErrMalformedSnapshot)
	}

	entries := make([]Entry, 0)
	positions := make(map[ActivityName]int)
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("%w: expected object key", ErrMalformedSnapshot)
		}
		name, err := NewActivityName(key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}

		var wire wireDetail
		if err := decoder.Decode(&wire); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrMalformedSnapshot, key, err)
		}
		detail, err := wire.detail(key)
		if err != nil {
			return err
		}

		if position, seen := positions[name]; seen {
			entries[position].Detail = detail
			continue
		}
		positions[name] = len(entries)
		entries = append(entries, Entry{Name: name, Detail: detail})
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: trailing data", ErrMalformedSnapshot)
	}

	built, err := NewSnapshot(entries...)
	if err != nil {
		return err
	}
	*snapshot = built
	return nil
}

// MarshalJSON encodes the snapshot as a JSON object in display order.
func (snapshot Snapshot) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for position, entry := range snapshot.entries {
		if position > 0 {
			buffer.WriteByte(',')
		}
		key, err := json.Marshal(entry.Name.String())
		if err != nil {
			return nil, err
		}
		detail := entry.Detail
		if detail.Participants == nil {
			detail.Participants = []string{}
		}
		value, err := json.Marshal(detail)
		if err != nil {
			return nil, err
		}
		buffer.Write(key)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}
