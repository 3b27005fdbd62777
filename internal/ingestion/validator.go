package ingestion

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyTopic is returned when topic is missing or empty.
	ErrEmptyTopic = errors.New("topic must not be empty")
	// ErrTopicTooLong is returned when topic exceeds MaxFieldLength.
	ErrTopicTooLong = errors.New("topic exceeds maximum length")
	// ErrEmptyEventID is returned when event_id is missing or empty.
	ErrEmptyEventID = errors.New("event_id must not be empty")
	// ErrEventIDTooLong is returned when event_id exceeds MaxFieldLength.
	ErrEventIDTooLong = errors.New("event_id exceeds maximum length")
	// ErrEmptySource is returned when source is missing or empty.
	ErrEmptySource = errors.New("source must not be empty")
	// ErrSourceTooLong is returned when source exceeds MaxFieldLength.
	ErrSourceTooLong = errors.New("source exceeds maximum length")
	// ErrInvalidTimestamp is returned when timestamp does not parse as ISO-8601.
	ErrInvalidTimestamp = errors.New("timestamp is not a valid ISO-8601 date-time")
	// ErrEmptyBatch is returned when a publish request carries zero events.
	ErrEmptyBatch = errors.New("event batch must not be empty")
)

// timestampLayouts are tried in order. RFC3339Nano and RFC3339 both accept a
// trailing "Z" or a numeric timezone offset; RFC3339Nano additionally accepts
// fractional seconds of any precision.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

// Validator validates Event envelopes against the field constraints of the
// data model. It holds no mutable state and is safe for concurrent use.
type Validator struct{}

// NewValidator returns a ready-to-use Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEvent checks the field constraints of a single Event, including
// parsing Timestamp under the ISO-8601 grammar. The timestamp is never
// rewritten; it is parsed only to validate.
func (v *Validator) ValidateEvent(e Event) error {
	if e.Topic == "" {
		return ErrEmptyTopic
	}

	if len(e.Topic) > MaxFieldLength {
		return fmt.Errorf("%w: %d bytes", ErrTopicTooLong, len(e.Topic))
	}

	if e.EventID == "" {
		return ErrEmptyEventID
	}

	if len(e.EventID) > MaxFieldLength {
		return fmt.Errorf("%w: %d bytes", ErrEventIDTooLong, len(e.EventID))
	}

	if e.Source == "" {
		return ErrEmptySource
	}

	if len(e.Source) > MaxFieldLength {
		return fmt.Errorf("%w: %d bytes", ErrSourceTooLong, len(e.Source))
	}

	if !v.isValidTimestamp(e.Timestamp) {
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, e.Timestamp)
	}

	return nil
}

// ValidateEventBatch validates a non-empty ordered sequence of Events,
// stopping at the first invalid event and reporting its index.
func (v *Validator) ValidateEventBatch(events []Event) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}

	for i, e := range events {
		if err := v.ValidateEvent(e); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}

	return nil
}

func (v *Validator) isValidTimestamp(ts string) bool {
	if ts == "" {
		return false
	}

	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, ts); err == nil {
			return true
		}
	}

	return false
}
