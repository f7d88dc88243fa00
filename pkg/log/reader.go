package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/georgejecook/roku-test-automation/pkg/wire"
)

// Filter selects events. The zero Filter selects everything; each set
// field narrows the selection.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// MessageID and Kind only select message events.
	MessageID *uint64
	Kind      *wire.Kind
}

// Match reports whether e satisfies every set criterion.
func (f Filter) Match(e Event) bool {
	switch {
	case f.ConnectionID != "" && f.ConnectionID != e.ConnectionID:
		return false
	case f.Direction != nil && *f.Direction != e.Direction:
		return false
	case f.Layer != nil && *f.Layer != e.Layer:
		return false
	case f.Category != nil && *f.Category != e.Category:
		return false
	case f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}

	if f.MessageID == nil && f.Kind == nil {
		return true
	}
	m := e.Message
	if m == nil {
		return false
	}
	if f.MessageID != nil && m.ID != *f.MessageID {
		return false
	}
	if f.Kind != nil && (m.Kind == nil || *m.Kind != *f.Kind) {
		return false
	}
	return true
}

// Reader streams events out of a protocol log.
type Reader struct {
	src     io.Closer
	dec     *cbor.Decoder
	filter  Filter
	read    int
	skipped int
}

// NewReader opens the log at path and yields every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the log at path and yields events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open protocol log: %w", err)
	}
	r := NewStreamReader(f, filter)
	r.src = f
	return r, nil
}

// NewStreamReader reads events from src. Closing the Reader does not close
// src.
func NewStreamReader(src io.Reader, filter Filter) *Reader {
	return &Reader{dec: NewDecoder(src), filter: filter}
}

// Next returns the next matching event, or io.EOF at the end of the log.
// A log cut off mid-event reports an error naming the event's position.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		err := r.dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, fmt.Errorf("event %d: %w", r.read+r.skipped+1, err)
		}
		if !r.filter.Match(e) {
			r.skipped++
			continue
		}
		r.read++
		return e, nil
	}
}

// Skipped returns how many events the filter has rejected so far.
func (r *Reader) Skipped() int { return r.skipped }

// Close releases the file opened by NewReader or NewFilteredReader.
func (r *Reader) Close() error {
	if r.src == nil {
		return nil
	}
	return r.src.Close()
}
