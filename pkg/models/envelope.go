package models

import (
	"encoding/json"
	"time"
)

// DelayUntilLayout is the human-readable echo of a scheduled delivery time.
// Its presence on an envelope is the signal that the entry is delayed.
const DelayUntilLayout = "2006-01-02 15:04:05"

// Envelope is the unit of work carried through a queue. Data is opaque to the
// queue itself: a map for single operations, a list of maps for fan-out.
type Envelope struct {
	QueueName  string      `json:"queue_name"`
	Operation  string      `json:"operation"`
	Model      string      `json:"model,omitempty"`
	Data       interface{} `json:"data"`
	Retries    int         `json:"retries,omitempty"`
	DelayUntil string      `json:"delay_until,omitempty"`
	PoisonedAt float64     `json:"poisoned_at,omitempty"`
}

// IsDelayed reports whether the envelope was enqueued with a future delivery
// time. The DelayUntil field is authoritative; entry IDs are only a store
// scheduling mechanism.
func (e Envelope) IsDelayed() bool {
	return e.DelayUntil != ""
}

// DueAt parses the scheduled delivery time in local time. Returns the zero
// time for immediate envelopes or unparseable values.
func (e Envelope) DueAt() time.Time {
	if e.DelayUntil == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(DelayUntilLayout, e.DelayUntil, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DataMaps normalizes Data to a slice of maps: a single map becomes a
// one-element slice, a list fans out element-wise. Non-map payloads yield nil.
func (e Envelope) DataMaps() []map[string]interface{} {
	switch v := e.Data.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil
			}
			out = append(out, m)
		}
		return out
	case []map[string]interface{}:
		return v
	default:
		return nil
	}
}

// Marshal serializes the envelope for storage in a stream entry.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes a stream entry payload back into an Envelope.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
