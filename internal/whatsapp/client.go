package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	"go.uber.org/zap"

	"github.com/wagate/wagate/internal/domain/session"
	"github.com/wagate/wagate/internal/infrastructure/logging"
)

// eventBufferSize bounds the translated event channel. whatsmeow invokes
// handlers synchronously, so traffic emits never block; overflow traffic
// is dropped with a log, while lifecycle events wait for space.
const eventBufferSize = 128

type client struct {
	wm     *whatsmeow.Client
	events chan session.Event
	logger *logging.Logger
}

func (c *client) Events() <-chan session.Event { return c.events }

func (c *client) Disconnect() { c.wm.Disconnect() }

// Send builds the wire message for the payload and submits it.
func (c *client) Send(ctx context.Context, to string, p session.Payload) (*session.SendResult, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", to, err)
	}

	var msg *waE2E.Message
	switch pl := p.(type) {
	case session.TextPayload:
		msg = &waE2E.Message{Conversation: proto.String(pl.Body)}
	case session.MediaPayload:
		msg, err = c.buildMediaMessage(ctx, pl)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported payload type %T", p)
	}

	resp, err := c.wm.SendMessage(ctx, jid, msg)
	if err != nil {
		return nil, err
	}
	return &session.SendResult{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (c *client) buildMediaMessage(ctx context.Context, pl session.MediaPayload) (*waE2E.Message, error) {
	switch pl.Kind {
	case session.MediaImage:
		up, err := c.wm.Upload(ctx, pl.Data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("image upload failed: %w", err)
		}
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(pl.Caption),
			Mimetype:      proto.String(pl.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil

	case session.MediaDocument:
		up, err := c.wm.Upload(ctx, pl.Data, whatsmeow.MediaDocument)
		if err != nil {
			return nil, fmt.Errorf("document upload failed: %w", err)
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Title:         proto.String(pl.FileName),
			FileName:      proto.String(pl.FileName),
			Caption:       proto.String(pl.Caption),
			Mimetype:      proto.String(pl.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil

	default:
		return nil, fmt.Errorf("unsupported media kind %q", pl.Kind)
	}
}

// translate converts whatsmeow callback events into the typed stream.
// Lifecycle and credential events go through emitSync: losing one would
// wedge the state machine, so they wait for buffer space instead of
// falling into the overflow drop.
func (c *client) translate(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		c.emitSync(session.ConnectedEvent{Identity: c.identity()})

	case *events.PairSuccess:
		blob, err := json.Marshal(pairRecord{
			JID:          evt.ID.String(),
			Platform:     evt.Platform,
			BusinessName: evt.BusinessName,
			PairedAt:     time.Now().UTC(),
		})
		if err == nil {
			c.emitSync(session.CredentialsEvent{Blob: blob})
		}

	case *events.LoggedOut:
		c.emitSync(session.DisconnectedEvent{
			Reason: session.ReasonLoggedOut,
			Detail: fmt.Sprint(evt.Reason),
		})

	case *events.StreamReplaced:
		c.emitSync(session.DisconnectedEvent{
			Reason: session.ReasonStreamReplaced,
			Detail: "stream replaced by another client",
		})

	case *events.Disconnected:
		c.emitSync(session.DisconnectedEvent{
			Reason: session.ReasonConnectionLost,
			Detail: "connection closed",
		})

	case *events.ConnectFailure:
		c.emitSync(session.DisconnectedEvent{
			Reason: session.ReasonConnectionLost,
			Detail: fmt.Sprintf("connect failure: %s", evt.Message),
		})

	case *events.Message:
		c.emit(translateMessage(evt))

	case *events.Receipt:
		c.emit(session.ReceiptEvent{Kind: receiptKind(evt.Type), Raw: evt})
	}
}

// pumpQR feeds pairing codes from the QR channel into the event stream.
// The channel closes on its own once pairing succeeds or times out.
func (c *client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emitSync(session.QREvent{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			return
		default:
			if item.Error != nil {
				c.logger.Warn("qr channel error", zap.Error(item.Error))
			}
			return
		}
	}
}

// emit never blocks: whatsmeow dispatches events synchronously and a
// stalled consumer must not stall the socket. Only message and receipt
// traffic goes through here; losing one under backpressure is
// acceptable.
func (c *client) emit(evt session.Event) {
	select {
	case c.events <- evt:
	default:
		c.logger.Warn("event buffer full, dropping event",
			zap.String("type", fmt.Sprintf("%T", evt)),
		)
	}
}

// emitSync waits for buffer space. Lifecycle events are rare and the
// manager drains the channel until it sees a disconnect, so a full
// buffer here clears as soon as the loop catches up.
func (c *client) emitSync(evt session.Event) {
	c.events <- evt
}

func (c *client) identity() session.Identity {
	id := session.Identity{DisplayName: c.wm.Store.PushName}
	if c.wm.Store.ID != nil {
		id.ID = c.wm.Store.ID.String()
	}
	return id
}

// pairRecord is the opaque credential blob persisted by the manager.
type pairRecord struct {
	JID          string    `json:"jid"`
	Platform     string    `json:"platform,omitempty"`
	BusinessName string    `json:"business_name,omitempty"`
	PairedAt     time.Time `json:"paired_at"`
}

func translateMessage(evt *events.Message) session.MessageEvent {
	body := session.MessageBody{}
	if msg := evt.Message; msg != nil {
		body.Conversation = msg.GetConversation()
		if ext := msg.GetExtendedTextMessage(); ext != nil {
			body.ExtendedText = ext.GetText()
		}
		if img := msg.GetImageMessage(); img != nil {
			body.HasImage = true
			body.ImageCaption = img.GetCaption()
		}
		body.HasVideo = msg.GetVideoMessage() != nil
		body.HasAudio = msg.GetAudioMessage() != nil
		body.HasDocument = msg.GetDocumentMessage() != nil
		body.HasSticker = msg.GetStickerMessage() != nil
	}
	return session.MessageEvent{
		RemoteJID: evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		PushName:  evt.Info.PushName,
		FromMe:    evt.Info.IsFromMe,
		Body:      body,
		Raw:       evt,
	}
}

func receiptKind(t events.ReceiptType) string {
	switch t {
	case events.ReceiptTypeRead, events.ReceiptTypeReadSelf:
		return "read"
	case events.ReceiptTypePlayed:
		return "played"
	default:
		return "delivered"
	}
}
