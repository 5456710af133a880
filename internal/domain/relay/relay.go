// Package relay consumes inbound session events, applies the auto-reply
// rule, and forwards events to an optional webhook sink. Delivery is
// fire-and-forget: failures are logged and dropped, never retried and
// never surfaced.
package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/wagate/wagate/internal/domain/session"
	"github.com/wagate/wagate/internal/infrastructure/logging"
	"github.com/wagate/wagate/internal/infrastructure/monitoring"
)

const autoReplyTrigger = "ping"
const autoReplyBody = "pong"

// Sender submits outbound messages. Implemented by the session manager.
type Sender interface {
	Send(ctx context.Context, to string, p session.Payload) (*session.SendResult, error)
}

// Config defines relay behavior.
type Config struct {
	// WebhookURL is the delivery address; empty disables forwarding.
	WebhookURL string
	// Timeout bounds each webhook delivery.
	Timeout time.Duration
	// AutoReply enables the ping/pong responder.
	AutoReply bool
}

// Relay is the single consumer of inbound message and receipt events.
type Relay struct {
	sender    Sender
	url       string
	autoReply bool
	client    *resty.Client
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	inflight  sync.WaitGroup
}

// New creates a relay.
func New(sender Sender, cfg Config, logger *logging.Logger) *Relay {
	if logger == nil {
		logger = logging.NewDefault()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Relay{
		sender:    sender,
		url:       cfg.WebhookURL,
		autoReply: cfg.AutoReply,
		client:    client,
		logger:    logger,
	}
}

// WithMetrics attaches a metrics collector.
func (r *Relay) WithMetrics(metrics *monitoring.Metrics) *Relay {
	r.metrics = metrics
	return r
}

// HandleMessage processes one received message: auto-reply first, then
// webhook forwarding. Runs on the session event loop, so every failure
// is contained here.
func (r *Relay) HandleMessage(ctx context.Context, evt session.MessageEvent) {
	defer r.contain("message")

	if evt.FromMe {
		return
	}

	kind, text := classify(evt.Body)

	if r.autoReply && strings.ToLower(strings.TrimSpace(text)) == autoReplyTrigger {
		if _, err := r.sender.Send(ctx, evt.RemoteJID, session.TextPayload{Body: autoReplyBody}); err != nil {
			r.logger.Warn("auto-reply failed",
				zap.String("to", evt.RemoteJID),
				zap.Error(err),
			)
		} else {
			r.metrics.RecordAutoReply()
		}
	}

	r.forward("message", map[string]any{
		"event":     "message",
		"remoteJid": evt.RemoteJID,
		"type":      kind,
		"text":      text,
		"message":   evt.Raw,
	})
}

// HandleReceipt forwards a delivery/read receipt batch.
func (r *Relay) HandleReceipt(_ context.Context, evt session.ReceiptEvent) {
	defer r.contain("receipt")

	r.forward("receipt", map[string]any{
		"event":   "receipt",
		"updates": evt.Raw,
	})
}

// Wait blocks until all in-flight webhook deliveries complete. Used on
// shutdown and in tests.
func (r *Relay) Wait() {
	r.inflight.Wait()
}

// forward posts the payload to the webhook sink asynchronously. No
// retry, no queue: a failed delivery is logged and dropped.
func (r *Relay) forward(event string, payload map[string]any) {
	if r.url == "" {
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer r.contain("delivery")

		resp, err := r.client.R().SetBody(payload).Post(r.url)
		if err != nil {
			r.metrics.RecordRelayDelivery(event, "error")
			r.logger.Warn("webhook delivery failed",
				zap.String("event", event),
				zap.Error(err),
			)
			return
		}
		if resp.IsError() {
			r.metrics.RecordRelayDelivery(event, "rejected")
			r.logger.Warn("webhook rejected event",
				zap.String("event", event),
				zap.Int("status", resp.StatusCode()),
			)
			return
		}
		r.metrics.RecordRelayDelivery(event, "ok")
	}()
}

// contain recovers a panic from a malformed event shape so it never
// terminates the event subscription.
func (r *Relay) contain(stage string) {
	if rec := recover(); rec != nil {
		r.logger.Error("relay recovered from panic",
			zap.String("stage", stage),
			zap.Any("panic", rec),
		)
	}
}

// classify extracts the normalized content kind and best-effort text of
// a message body. Media kinds win over text; text is the first non-empty
// of plain body, extended-text body, and image caption.
func classify(b session.MessageBody) (kind, text string) {
	text = b.Conversation
	if text == "" {
		text = b.ExtendedText
	}
	if text == "" {
		text = b.ImageCaption
	}

	switch {
	case b.HasImage:
		kind = "image"
	case b.HasVideo:
		kind = "video"
	case b.HasAudio:
		kind = "audio"
	case b.HasDocument:
		kind = "document"
	case b.HasSticker:
		kind = "sticker"
	case text != "":
		kind = "text"
	default:
		kind = "unknown"
	}
	return kind, text
}
