package sharedmem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/spf13/cast"

	"github.com/Iron-Ham/agentsync/internal/errors"
)

// Status is the lifecycle state of an action record.
type Status string

// Record statuses. Active is initial; completed and stopped are terminal.
const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

// JSON field names of the known record fields. A caller payload key with
// one of these names is dropped in favor of the known field.
const (
	fieldAgentID     = "agentId"
	fieldActionID    = "actionId"
	fieldType        = "type"
	fieldStatus      = "status"
	fieldTimestamp   = "timestamp"
	fieldCompletedAt = "completedAt"
	fieldStoppedAt   = "stoppedAt"
	fieldResult      = "result"
	fieldStopReason  = "stopReason"
	fieldAgentRole   = "agentRole"
)

var reservedFields = map[string]struct{}{
	fieldAgentID: {}, fieldActionID: {}, fieldType: {}, fieldStatus: {},
	fieldTimestamp: {}, fieldCompletedAt: {}, fieldStoppedAt: {},
	fieldResult: {}, fieldStopReason: {}, fieldAgentRole: {},
}

// Record is one unit of trackable work stored under
// "namespace:agentId:actionId". On the wire it is a flat JSON object: the
// known fields plus the caller payload merged in at the top level.
type Record struct {
	AgentID     string
	ActionID    string
	Type        string
	Status      Status
	AgentRole   string
	Timestamp   time.Time // creation
	CompletedAt time.Time // zero until completed
	StoppedAt   time.Time // zero until stopped
	Result      json.RawMessage
	StopReason  string

	// Payload holds every caller-supplied field that is not a known field.
	Payload map[string]any
}

// PayloadString returns a payload field as a string, or "" when absent.
func (r *Record) PayloadString(key string) string {
	if r == nil || r.Payload == nil {
		return ""
	}
	return cast.ToString(r.Payload[key])
}

// MarshalJSON flattens the record into the shared wire shape. Times are Unix
// milliseconds; optional fields are omitted while unset.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+10)
	for k, v := range r.Payload {
		if _, reserved := reservedFields[k]; reserved {
			continue
		}
		out[k] = v
	}

	out[fieldAgentID] = r.AgentID
	out[fieldActionID] = r.ActionID
	out[fieldStatus] = r.Status
	out[fieldTimestamp] = r.Timestamp.UnixMilli()
	if r.Type != "" {
		out[fieldType] = r.Type
	}
	if r.AgentRole != "" {
		out[fieldAgentRole] = r.AgentRole
	}
	if !r.CompletedAt.IsZero() {
		out[fieldCompletedAt] = r.CompletedAt.UnixMilli()
	}
	if !r.StoppedAt.IsZero() {
		out[fieldStoppedAt] = r.StoppedAt.UnixMilli()
	}
	if len(r.Result) > 0 {
		out[fieldResult] = r.Result
	}
	if r.StopReason != "" {
		out[fieldStopReason] = r.StopReason
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat wire shape. Numeric time fields are accepted
// as integers, floats, or numeric strings.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var rec Record
	for key, value := range raw {
		var err error
		switch key {
		case fieldAgentID:
			rec.AgentID, err = decodeString(value)
		case fieldActionID:
			rec.ActionID, err = decodeString(value)
		case fieldType:
			rec.Type, err = decodeString(value)
		case fieldAgentRole:
			rec.AgentRole, err = decodeString(value)
		case fieldStopReason:
			rec.StopReason, err = decodeString(value)
		case fieldStatus:
			var s string
			s, err = decodeString(value)
			rec.Status = Status(s)
		case fieldTimestamp:
			rec.Timestamp, err = decodeMillis(value)
		case fieldCompletedAt:
			rec.CompletedAt, err = decodeMillis(value)
		case fieldStoppedAt:
			rec.StoppedAt, err = decodeMillis(value)
		case fieldResult:
			if !bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				rec.Result = append(json.RawMessage(nil), value...)
			}
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				if rec.Payload == nil {
					rec.Payload = make(map[string]any)
				}
				rec.Payload[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}

	switch rec.Status {
	case StatusActive, StatusCompleted, StatusStopped:
	default:
		return fmt.Errorf("field %q: unknown status %q", fieldStatus, rec.Status)
	}

	*r = rec
	return nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return cast.ToStringE(v)
}

func decodeMillis(raw json.RawMessage) (time.Time, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return time.Time{}, err
	}
	if v == nil {
		return time.Time{}, nil
	}
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	ms, err := cast.ToInt64E(v)
	if err != nil {
		// Fractional milliseconds are truncated.
		f, ferr := cast.ToFloat64E(v)
		if ferr != nil {
			return time.Time{}, err
		}
		ms = int64(f)
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// encodeRecord marshals rec for storage.
func encodeRecord(rec *Record) ([]byte, error) {
	return json.Marshal(rec)
}

// decodeRecord unmarshals a stored value, wrapping failures as corrupt.
func decodeRecord(key string, data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrCorruptRecord, key, err)
	}
	return &rec, nil
}

// clonePayload copies a caller payload, dropping keys that collide with
// known fields.
func clonePayload(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := maps.Clone(payload)
	for k := range reservedFields {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
