package session

import (
	"context"
	"time"
)

// State is the lifecycle state of the single protocol session.
type State int

const (
	StateInit State = iota
	StateAwaitingScan
	StateConnected
	StateClosed
	StateLoggedOut
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Identity describes the account the session is authenticated as.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name,omitempty"`
}

// Snapshot is a read-only view of the session. Consumers never see the
// live handle, only snapshots taken under the manager's lock.
type Snapshot struct {
	State        State
	Identity     *Identity
	PairingToken string
}

// DisconnectReason classifies why the capability reported a closed
// connection. Only an explicit logout is terminal.
type DisconnectReason int

const (
	ReasonConnectionLost DisconnectReason = iota
	ReasonStreamReplaced
	ReasonLoggedOut
)

// Terminal reports whether the reason ends the session for good.
func (r DisconnectReason) Terminal() bool { return r == ReasonLoggedOut }

func (r DisconnectReason) String() string {
	switch r {
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonStreamReplaced:
		return "stream_replaced"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Payload is an outbound message body. Exists only for the duration of
// one send call.
type Payload interface{ isPayload() }

// TextPayload is a plain text message.
type TextPayload struct {
	Body string
}

func (TextPayload) isPayload() {}

// MediaKind selects how an uploaded binary is packaged on the wire.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
)

// MediaPayload is a binary message with metadata. Document sends carry
// the original filename and declared media type; image sends only an
// optional caption.
type MediaPayload struct {
	Kind     MediaKind
	Data     []byte
	MimeType string
	FileName string
	Caption  string
}

func (MediaPayload) isPayload() {}

// SendResult is the capability's acknowledgement of a send.
type SendResult struct {
	MessageID string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// Dialer acquires a fresh session handle. The manager dials once at
// startup and again on every reconnect attempt.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}

// Client is one live protocol session handle. At most one exists
// process-wide; the manager owns it exclusively.
type Client interface {
	// Events yields the typed event stream for this handle. The manager
	// is the single consumer.
	Events() <-chan Event
	Send(ctx context.Context, to string, p Payload) (*SendResult, error)
	Disconnect()
}

// EventSink receives inbound message and receipt events. Implemented by
// the event relay; calls happen on the manager's event loop, so sinks
// must contain their own failures.
type EventSink interface {
	HandleMessage(ctx context.Context, evt MessageEvent)
	HandleReceipt(ctx context.Context, evt ReceiptEvent)
}
