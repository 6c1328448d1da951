// Package ipc defines jolt's Unix-domain-socket wire protocol and the
// server/client/hub that speak it (spec §6). Every message is a single
// newline-delimited JSON object carrying a protocol version, so the CLI
// and daemon can evolve independently and refuse to talk past a
// version they don't understand.
package ipc

import (
	"encoding/json"

	"github.com/jolt-daemon/jolt/internal/model"
)

// ProtocolVersion is the version this build speaks. MinSupportedVersion
// is the oldest version this build still accepts from a peer.
const (
	ProtocolVersion     = 2
	MinSupportedVersion = 1
)

// Kind discriminates which request or response fields a Message carries.
type Kind string

const (
	KindGetStatus        Kind = "GetStatus"
	KindGetRecentSamples Kind = "GetRecentSamples"
	KindGetHourlyStats   Kind = "GetHourlyStats"
	KindGetDailyStats    Kind = "GetDailyStats"
	KindGetSessions      Kind = "GetSessions"
	KindGetTopProcesses  Kind = "GetTopProcesses"
	KindSubscribe        Kind = "Subscribe"
	KindKillProcess      Kind = "KillProcess"
	KindShutdown         Kind = "Shutdown"

	KindStatus       Kind = "Status"
	KindSamples      Kind = "Samples"
	KindHourlyStats  Kind = "HourlyStats"
	KindDailyStats   Kind = "DailyStats"
	KindSessions     Kind = "Sessions"
	KindTopProcesses Kind = "TopProcesses"
	KindOk           Kind = "Ok"
	KindError        Kind = "Error"
	KindSampleEvent  Kind = "SampleEvent"
)

// Message is the single envelope exchanged over the socket, one per
// line: a flat JSON object carrying "v", "kind" and the request or
// response's own fields inline (no nested payload wrapper), so a
// client built against the wire format can decode without knowing
// about this package's internal envelope.
type Message struct {
	V    int
	Kind Kind

	fields map[string]json.RawMessage
}

// MarshalJSON flattens v, kind and the message's payload fields into
// a single JSON object.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.fields)+2)
	for k, v := range m.fields {
		out[k] = v
	}
	v, err := json.Marshal(m.V)
	if err != nil {
		return nil, err
	}
	out["v"] = v
	k, err := json.Marshal(m.Kind)
	if err != nil {
		return nil, err
	}
	out["kind"] = k
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object back into v, kind and the
// remaining fields, which Decode later targets at a request/response
// struct.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["v"]; ok {
		if err := json.Unmarshal(raw, &m.V); err != nil {
			return err
		}
		delete(fields, "v")
	}
	if raw, ok := fields["kind"]; ok {
		if err := json.Unmarshal(raw, &m.Kind); err != nil {
			return err
		}
		delete(fields, "kind")
	}
	m.fields = fields
	return nil
}

// --- Request payloads ---

// GetRecentSamplesRequest asks for the most recent Limit samples.
type GetRecentSamplesRequest struct {
	Limit int `json:"limit"`
}

// RangeRequest asks for hourly rollups with hour_start in [From, To),
// both Unix-millisecond timestamps. GetDailyStats carries from/to as
// "YYYY-MM-DD" day strings instead, and GetSessions uses
// GetSessionsRequest.
type RangeRequest struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// GetSessionsRequest ranges over sessions, optionally filtered by kind.
type GetSessionsRequest struct {
	From int64              `json:"from"`
	To   int64              `json:"to"`
	Kind *model.SessionKind `json:"kind,omitempty"`
}

// GetTopProcessesRequest asks for one day's top-process ranking.
type GetTopProcessesRequest struct {
	Day string `json:"day"`
}

// SubscribeRequest opens a push subscription on the connection.
type SubscribeRequest struct {
	Stream string `json:"stream"` // "samples"
}

// KillProcessRequest asks the daemon to signal a process.
type KillProcessRequest struct {
	PID int `json:"pid"`
}

// --- Response payloads ---

// StatusResponse answers GetStatus.
type StatusResponse struct {
	Running        bool              `json:"running"`
	Version        string            `json:"version"`
	UptimeS        int64             `json:"uptime_s"`
	CurrentCharge  float64           `json:"current_charge"`
	CurrentState   model.ChargeState `json:"current_state"`
	SensorDegraded bool              `json:"sensor_degraded"`
}

// SamplesResponse answers GetRecentSamples.
type SamplesResponse struct {
	Samples []model.Sample `json:"samples"`
}

// HourlyStatsResponse answers GetHourlyStats.
type HourlyStatsResponse struct {
	Stats []model.HourlyStat `json:"stats"`
}

// DailyStatsResponse answers GetDailyStats.
type DailyStatsResponse struct {
	Stats []model.DailyStat `json:"stats"`
}

// SessionsResponse answers GetSessions.
type SessionsResponse struct {
	Sessions []model.ChargeSession `json:"sessions"`
}

// TopProcessesResponse answers GetTopProcesses.
type TopProcessesResponse struct {
	Processes []model.DailyTopProcess `json:"processes"`
}

// ErrorResponse reports a failure using jerr's stable code taxonomy.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SampleEvent is pushed to subscribers of the "samples" stream each
// time the Recorder records a new tick.
type SampleEvent struct {
	Sample model.Sample `json:"sample"`
}

// Encode flattens payload's fields into a Message of the given kind.
func Encode(kind Kind, payload any) (Message, error) {
	msg := Message{V: ProtocolVersion, Kind: kind}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, err
	}
	msg.fields = fields
	return msg, nil
}

// Decode unmarshals msg's flattened payload fields into out.
func Decode(msg Message, out any) error {
	if len(msg.fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(msg.fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
