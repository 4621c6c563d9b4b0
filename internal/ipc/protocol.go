// Package ipc implements the worker's control socket: a length-prefixed
// JSON protocol over a Unix domain socket.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"dhe/internal/health"
	"dhe/internal/history"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x44484543 // "DHEC"

	// HeaderSize is the size of the fixed message header in bytes.
	HeaderSize = 16

	// MaxPayload bounds a single message body.
	MaxPayload = 4 << 20
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	MsgPing  MessageType = 0x0001
	MsgPong  MessageType = 0x0002
	MsgError MessageType = 0x0005

	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	MsgReloadRequest  MessageType = 0x0200
	MsgReloadResponse MessageType = 0x0201

	MsgPasteRequest  MessageType = 0x0300
	MsgPasteResponse MessageType = 0x0301
	MsgTapRequest    MessageType = 0x0302
	MsgTapResponse   MessageType = 0x0303

	MsgHistoryRequest  MessageType = 0x0400
	MsgHistoryResponse MessageType = 0x0401

	MsgMetricsRequest  MessageType = 0x0500
	MsgMetricsResponse MessageType = 0x0501
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgError:
		return "error"
	case MsgStatusRequest:
		return "status"
	case MsgStatusResponse:
		return "status-response"
	case MsgReloadRequest:
		return "reload"
	case MsgReloadResponse:
		return "reload-response"
	case MsgPasteRequest:
		return "paste"
	case MsgPasteResponse:
		return "paste-response"
	case MsgTapRequest:
		return "tap"
	case MsgTapResponse:
		return "tap-response"
	case MsgHistoryRequest:
		return "history"
	case MsgHistoryResponse:
		return "history-response"
	case MsgMetricsRequest:
		return "metrics"
	case MsgMetricsResponse:
		return "metrics-response"
	default:
		return fmt.Sprintf("MessageType(%#04x)", uint16(t))
	}
}

// Header is the fixed-size message header.
//
//	0..4   magic
//	4      version
//	5      flags (reserved)
//	6..8   type
//	8..12  request id
//	12..16 payload length
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// Message wraps a header and its JSON payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// NewResponse encodes v as the payload of a msgType message.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	if v == nil {
		return NewMessage(msgType, requestID, nil), nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return NewMessage(msgType, requestID, payload), nil
}

// NewErrorMessage builds an error reply.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := json.Marshal(ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads and checks a header.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version == 0 || h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	if h.Length > MaxPayload {
		return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
	}
	return h, nil
}

// Write writes header and payload in a single call.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Magic)
	buf = append(buf, m.Header.Version, m.Header.Flags)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Header.Type))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.RequestID)
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Length)
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: *h}
	if h.Length > 0 {
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v as is.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Error codes carried by ErrorResponse.
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrNotAvailable     = 7
)

// ErrorResponse is sent when an operation fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StatusResponse describes the running worker.
type StatusResponse struct {
	Version    string             `json:"version"`
	StartedAt  time.Time          `json:"started_at"`
	Uptime     time.Duration      `json:"uptime"`
	ConfigPath string             `json:"config_path"`
	Devices    []Device           `json:"devices"`
	Actions    []Binding          `json:"actions"`
	Metrics    map[string]float64 `json:"metrics"`
	Health     *health.Report     `json:"health,omitempty"`
}

// Device is an input device the worker reads from.
type Device struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
}

// Binding is a registered action and its key combination.
type Binding struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}

// ReloadResponse reports the bindings active after a reload.
type ReloadResponse struct {
	Actions []Binding `json:"actions"`
}

// TapRequest presses and releases Keys as one chord.
type TapRequest struct {
	Keys []string `json:"keys"`
}

// HistoryRequest asks for the newest Limit history entries.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse carries history entries, newest first.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// MetricsResponse carries every metric in Prometheus text format.
type MetricsResponse struct {
	Text string `json:"text"`
}
