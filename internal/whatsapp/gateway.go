// Package whatsapp adapts whatsmeow to the session capability contract:
// one Dial yields one handle whose callbacks are translated into the
// typed event channel the session manager consumes.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/wagate/wagate/internal/domain/session"
	"github.com/wagate/wagate/internal/infrastructure/logging"
)

// Gateway dials fresh whatsmeow clients against a shared SQLite device
// store. The device store is whatsmeow's own credential persistence and
// stays opaque to the rest of the gateway.
type Gateway struct {
	container *sqlstore.Container
	logger    *logging.Logger
	waLogger  waLog.Logger
}

// NewGateway opens (or creates) the device store under dir.
func NewGateway(ctx context.Context, dir string, logger *logging.Logger) (*Gateway, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, "session.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	return &Gateway{
		container: container,
		logger:    logger,
		waLogger:  waLog.Noop,
	}, nil
}

// Dial acquires a new session handle. When the stored device is not yet
// paired, the QR channel is pumped into the event stream so the manager
// can surface pairing codes.
func (g *Gateway) Dial(ctx context.Context) (session.Client, error) {
	device, err := g.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	wm := whatsmeow.NewClient(device, g.waLogger)
	// The session manager owns the reconnect policy.
	wm.EnableAutoReconnect = false

	c := &client{
		wm:     wm,
		events: make(chan session.Event, eventBufferSize),
		logger: g.logger,
	}
	wm.AddEventHandler(c.translate)

	if wm.Store.ID == nil {
		// GetQRChannel must be called before Connect on an unpaired
		// device.
		qrChan, err := wm.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open qr channel: %w", err)
		}
		go c.pumpQR(qrChan)
	}

	if err := wm.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return c, nil
}

// Close releases the device store.
func (g *Gateway) Close() error {
	return g.container.Close()
}
