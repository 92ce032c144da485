package traceproto

import (
	"encoding/json"
	"fmt"

	"ticktrace.gg/internal/trace"
)

// Version is the playback/export protocol version (independent of the
// binary trace format version).
const Version = "1.0"

// Message types.
const (
	TypePlay    = "PLAY"
	TypeSession = "SESSION"
	TypeEvent   = "EVENT"
	TypeEnd     = "END"
	TypeError   = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server. First message on the playback WS connection.
type PlayMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Session         string `json:"session"`

	// Optional: skip events below a tick, and pace tick advances at a
	// fixed rate instead of streaming as fast as the socket drains.
	FromTick int32 `json:"from_tick,omitempty"`
	Rate     int   `json:"rate,omitempty"`
}

// Server -> Client. Sent once after a successful PLAY; also the first line
// of an exported event file.
type SessionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Session         string `json:"session"`
	Version         int32  `json:"version"`
	MapName         string `json:"map_name"`
	MapSize         uint32 `json:"map_size"`
	MapCRC          string `json:"map_crc"`
}

// Server -> Client. One decoded record. Client is -1 for tick advances.
// Pos/PosDelta are set for player kinds, Input/InputDelta for input kinds.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            int32  `json:"tick"`
	Kind            string `json:"kind"`
	Client          int    `json:"client"`

	Delta      int32              `json:"delta,omitempty"`
	Pos        *trace.PlayerPos   `json:"pos,omitempty"`
	PosDelta   *trace.PlayerPos   `json:"pos_delta,omitempty"`
	Input      *trace.PlayerInput `json:"input,omitempty"`
	InputDelta *trace.PlayerInput `json:"input_delta,omitempty"`
}

// Server -> Client. The trace ended cleanly at a record boundary.
type EndMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	FinalTick       int32  `json:"final_tick"`
	Events          int    `json:"events"`
}

// GET /v1/sessions response.
type SessionsResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	Sessions        []SessionInfo `json:"sessions"`
}

type SessionInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Server -> Client. Request or decode failure; the stream stops here.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
	Offset          int    `json:"offset,omitempty"`
}

// FromHeader builds the session preamble for one trace. The crc keeps the
// header's hex convention.
func FromHeader(name string, h trace.Header) SessionMsg {
	return SessionMsg{
		Type:            TypeSession,
		ProtocolVersion: Version,
		Session:         name,
		Version:         h.Version,
		MapName:         h.MapName,
		MapSize:         h.MapSize,
		MapCRC:          fmt.Sprintf("%08x", h.MapCRC),
	}
}

// FromEvent builds the wire form of one decoded event.
func FromEvent(ev trace.Event) EventMsg {
	m := EventMsg{
		Type:            TypeEvent,
		ProtocolVersion: Version,
		Tick:            ev.Tick,
		Kind:            ev.Kind.String(),
		Client:          ev.Client,
	}
	switch ev.Kind {
	case trace.EventTick:
		m.Delta = ev.Delta
	case trace.EventPlayerNew:
		pos := ev.Pos
		m.Pos = &pos
	case trace.EventPlayerDiff:
		pos, d := ev.Pos, ev.PosDelta
		m.Pos, m.PosDelta = &pos, &d
	case trace.EventInputNew:
		in := ev.Input
		m.Input = &in
	case trace.EventInputDiff:
		in, d := ev.Input, ev.InputDelta
		m.Input, m.InputDelta = &in, &d
	}
	return m
}
