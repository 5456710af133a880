package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wagate/wagate/internal/domain/creds"
	"github.com/wagate/wagate/internal/infrastructure/logging"
	"github.com/wagate/wagate/internal/infrastructure/monitoring"
)

// Manager owns the single session handle and its connect/reconnect state
// machine. All state mutation happens on the run loop goroutine; every
// other method only takes snapshots under the lock.
type Manager struct {
	dialer  Dialer
	store   creds.Store
	policy  RetryPolicy
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	state    State
	qr       string
	identity *Identity
	client   Client
	gen      uint64
	sink     EventSink
}

// NewManager creates a manager. Run must be called for the session to
// come up.
func NewManager(dialer Dialer, store creds.Store, policy RetryPolicy, logger *logging.Logger) *Manager {
	if policy == nil {
		policy = Immediate{Delay: 2 * time.Second}
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Manager{
		dialer: dialer,
		store:  store,
		policy: policy,
		logger: logger,
		state:  StateInit,
	}
}

// WithMetrics attaches a metrics collector.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// SetSink registers the consumer of inbound message and receipt events.
// Must be called before Run.
func (m *Manager) SetSink(sink EventSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// Status returns a read-only snapshot of the session.
func (m *Manager) Status() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{State: m.state, PairingToken: m.qr}
	if m.identity != nil {
		id := *m.identity
		snap.Identity = &id
	}
	return snap
}

// PairingToken returns the current pairing code, or "" when none is
// pending.
func (m *Manager) PairingToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qr
}

// Send delegates to the live handle. Returns ErrSessionUnavailable when
// no CONNECTED handle exists; a handle swap during the call makes the
// send fail rather than silently retarget.
func (m *Manager) Send(ctx context.Context, to string, p Payload) (*SendResult, error) {
	m.mu.RLock()
	client, gen, state := m.client, m.gen, m.state
	m.mu.RUnlock()

	if client == nil || state != StateConnected {
		m.recordSend("unavailable")
		return nil, ErrSessionUnavailable
	}

	res, err := client.Send(ctx, to, p)
	if err != nil {
		if m.generation() != gen {
			// The handle was swapped mid-send; the connection is gone,
			// not the message.
			m.recordSend("unavailable")
			return nil, ErrSessionUnavailable
		}
		m.recordSend("error")
		return nil, &SendError{Cause: err}
	}
	m.recordSend("ok")
	return res, nil
}

// Run drives the state machine until ctx is cancelled or the capability
// reports an explicit logout. Every reconnect attempt acquires a fresh
// handle; the previous one is discarded without draining.
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		m.setState(StateInit)

		client, err := m.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			m.logger.Warn("session dial failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if !m.wait(ctx, m.policy.Next(attempt)) {
				return ctx.Err()
			}
			continue
		}
		attempt = 0

		reason, alive := m.consume(ctx, client)
		client.Disconnect()
		m.dropHandle()

		if !alive {
			return ctx.Err()
		}
		if reason.Terminal() {
			m.setState(StateLoggedOut)
			m.logger.Warn("session logged out, not reconnecting")
			return nil
		}

		attempt++
		if m.metrics != nil {
			m.metrics.RecordReconnect()
		}
		m.logger.Info("session closed, reconnecting",
			zap.String("reason", reason.String()),
			zap.Int("attempt", attempt),
		)
		if !m.wait(ctx, m.policy.Next(attempt)) {
			return ctx.Err()
		}
	}
}

// consume processes one handle's event stream. Returns the disconnect
// reason and whether the run loop should keep going (false on ctx
// cancellation).
func (m *Manager) consume(ctx context.Context, client Client) (DisconnectReason, bool) {
	for {
		select {
		case <-ctx.Done():
			return ReasonConnectionLost, false
		case evt, ok := <-client.Events():
			if !ok {
				return ReasonConnectionLost, true
			}
			if reason, closed := m.handleEvent(ctx, client, evt); closed {
				return reason, true
			}
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, client Client, evt Event) (DisconnectReason, bool) {
	switch e := evt.(type) {
	case QREvent:
		m.mu.Lock()
		m.state = StateAwaitingScan
		m.qr = e.Code
		m.mu.Unlock()
		m.observeState()
		m.logger.Info("pairing code updated")

	case ConnectedEvent:
		m.mu.Lock()
		m.state = StateConnected
		m.qr = ""
		id := e.Identity
		m.identity = &id
		m.client = client
		m.gen++
		m.mu.Unlock()
		m.observeState()
		m.logger.Info("session connected", zap.String("jid", e.Identity.ID))

	case CredentialsEvent:
		// Persisted before the next event is processed so a crash never
		// replays a pairing step.
		if m.store != nil {
			if err := m.store.Save(e.Blob); err != nil {
				m.logger.Error("failed to persist credentials", zap.Error(err))
			}
		}

	case MessageEvent:
		if sink := m.currentSink(); sink != nil {
			sink.HandleMessage(ctx, e)
		}

	case ReceiptEvent:
		if sink := m.currentSink(); sink != nil {
			sink.HandleReceipt(ctx, e)
		}

	case DisconnectedEvent:
		m.logger.Warn("session disconnected",
			zap.String("reason", e.Reason.String()),
			zap.String("detail", e.Detail),
		)
		return e.Reason, true
	}
	return 0, false
}

// dropHandle invalidates the live handle. The generation bump makes
// in-flight sends against the old handle fail fast.
func (m *Manager) dropHandle() {
	m.mu.Lock()
	m.state = StateClosed
	m.client = nil
	m.qr = ""
	m.gen++
	m.mu.Unlock()
	m.observeState()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.observeState()
}

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

func (m *Manager) currentSink() EventSink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sink
}

// wait sleeps for d or until ctx is cancelled. Returns false on
// cancellation.
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) observeState() {
	if m.metrics == nil {
		return
	}
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	m.metrics.SetSessionState(int(state))
}

func (m *Manager) recordSend(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordSend(outcome)
	}
}
