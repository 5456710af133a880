package session

// Event is a typed notification from the protocol capability, delivered
// over the handle's event channel and consumed by the manager's run loop.
type Event interface{ isEvent() }

// QREvent carries a fresh pairing code. Each code supersedes the
// previous one.
type QREvent struct {
	Code string
}

func (QREvent) isEvent() {}

// ConnectedEvent signals an open, authenticated connection.
type ConnectedEvent struct {
	Identity Identity
}

func (ConnectedEvent) isEvent() {}

// DisconnectedEvent signals a closed connection.
type DisconnectedEvent struct {
	Reason DisconnectReason
	Detail string
}

func (DisconnectedEvent) isEvent() {}

// CredentialsEvent carries an updated opaque credential blob that must
// be persisted before the next event is processed.
type CredentialsEvent struct {
	Blob []byte
}

func (CredentialsEvent) isEvent() {}

// MessageBody holds the wire-format text carriers of a received message.
// The relay picks the first non-empty body and classifies the kind.
type MessageBody struct {
	Conversation string
	ExtendedText string
	ImageCaption string
	HasImage     bool
	HasVideo     bool
	HasAudio     bool
	HasDocument  bool
	HasSticker   bool
}

// MessageEvent is a received message. Raw is the capability's original
// event value, forwarded verbatim to the webhook sink.
type MessageEvent struct {
	RemoteJID string
	Sender    string
	PushName  string
	FromMe    bool
	Body      MessageBody
	Raw       any
}

func (MessageEvent) isEvent() {}

// ReceiptEvent is a delivery/read receipt batch.
type ReceiptEvent struct {
	Kind string
	Raw  any
}

func (ReceiptEvent) isEvent() {}
