package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Threshold defines the safe operating range for one monitored parameter.
// Min and Max are inclusive bounds; a reading outside [Min, Max] violates
// the threshold. Disabled thresholds never violate.
type Threshold struct {
	Parameter string  `json:"parameter"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Enabled   bool    `json:"enabled"`
}

// Violates reports whether the reading is outside the safe range.
func (t Threshold) Violates(value float64) bool {
	if !t.Enabled {
		return false
	}
	return value < t.Min || value > t.Max
}

// AlertEvent is a decided notification instance for one threshold violation.
// Immutable once created.
type AlertEvent struct {
	ID        string    `json:"id"`
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertBatch is one evaluation's worth of fired alerts, logged as a single
// record with a server-assigned write timestamp.
type AlertBatch struct {
	ID        string       `json:"id"`
	Alerts    []AlertEvent `json:"alerts"`
	Timestamp time.Time    `json:"timestamp"`
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
)

// AttemptResult is the outcome of a single notification attempt for one
// (event, recipient, channel) combination.
type AttemptResult struct {
	Parameter string  `json:"parameter"`
	Recipient string  `json:"recipient"`
	Channel   Channel `json:"channel"`
	SID       string  `json:"sid,omitempty"`
	Err       error   `json:"-"`
}

// HealthRecord is a periodic health-check entry written by the scheduled job.
type HealthRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	AlertsCount int       `json:"alerts_count"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemPercent  float64   `json:"mem_percent"`
}

// SnapshotField is one parameter reading within a telemetry snapshot. The raw
// value is kept as received; non-numeric fields (timestamps, labels) are
// carried through and skipped by evaluation.
type SnapshotField struct {
	Parameter string
	Value     json.RawMessage
}

// Float returns the field's value as a float64 when it is numeric.
func (f SnapshotField) Float() (float64, bool) {
	var v float64
	if err := json.Unmarshal(f.Value, &v); err != nil {
		return 0, false
	}
	return v, true
}

// Snapshot is one point-in-time set of parameter readings for a process
// stage. Field order matches the order of the source JSON object, so
// evaluation walks parameters in the order the telemetry source wrote them.
type Snapshot struct {
	Fields []SnapshotField
}

// UnmarshalJSON decodes a JSON object into an order-preserving field list.
// encoding/json maps lose key order, so the object is walked token by token.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("snapshot: expected JSON object, got %v", tok)
	}

	s.Fields = s.Fields[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("snapshot: field %q: %w", key, err)
		}
		s.Fields = append(s.Fields, SnapshotField{Parameter: key, Value: raw})
	}

	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON renders the snapshot back to a JSON object in field order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Parameter)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
