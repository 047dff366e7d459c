// Package realtime owns the single persistent connection to the
// pokojowo socket server and everything that keeps it useful across
// network loss: the connection state machine, retry pacing, token
// refresh, room replay, and fan-out of inbound events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pokojowo/realtime/internal/dispatch"
	"github.com/pokojowo/realtime/internal/notify"
	"github.com/pokojowo/realtime/internal/rooms"
	"github.com/pokojowo/realtime/internal/transport"
	"github.com/pokojowo/realtime/internal/wire"
)

// Errors
var (
	// ErrAuthFailed means the server rejected both the supplied token and
	// the one refresh the manager permits itself per connect attempt.
	ErrAuthFailed = errors.New("authentication failed")

	errCredentialsRejected = errors.New("credentials rejected")
	errHandshakeTimeout    = errors.New("handshake timeout")
)

// Config holds connection manager settings.
type Config struct {
	URL    string
	Policy Policy

	WriteTimeout         time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
	MessageBufferSize    int
	NotificationCapacity int

	// Clock drives retry and rebuild timers; nil uses the wall clock.
	Clock Clock

	// NewConn overrides transport construction, for tests.
	NewConn func(transport.Config, *slog.Logger) transport.Conn
}

// Manager owns the one transport instance and composes the dispatcher,
// room registry, and notification buffer around it. All mutable session
// state sits behind a single mutex because connects, timer callbacks,
// and transport reads arrive on independent goroutines.
type Manager struct {
	cfg    Config
	policy Policy
	logger *slog.Logger
	clock  Clock
	tokens TokenSource

	disp  *dispatch.Dispatcher
	rooms *rooms.Registry
	notes *notify.Buffer

	// Collapses concurrent Connect calls onto one dial.
	connectGroup singleflight.Group

	mu            sync.Mutex
	state         State
	gen           uint64 // session generation; stale async completions are discarded
	sessDone      chan struct{}
	conn          transport.Conn
	token         string
	connID        string
	userID        string
	attempt       int
	lastAttemptAt time.Time
	retryTimer    Timer
	rebuildTimer  Timer
}

// NewManager creates a disconnected manager. The application wires
// exactly one per process; the manager itself guarantees at most one
// live transport for its own lifetime.
func NewManager(cfg Config, tokens TokenSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 256
	}

	clock := cfg.Clock
	if clock == nil {
		clock = NewClock()
	}

	return &Manager{
		cfg:    cfg,
		policy: cfg.Policy.withDefaults(),
		logger: logger,
		clock:  clock,
		tokens: tokens,
		disp:   dispatch.New(logger.With("component", "dispatch")),
		rooms:  rooms.NewRegistry(),
		notes:  notify.NewBuffer(cfg.NotificationCapacity),
	}
}

// Connect establishes the connection using token as the credential. It
// is idempotent: while already connected, or while another Connect is in
// flight, it does not open a second transport. A rejected token is
// refreshed through the TokenSource and retried once; a second rejection
// returns ErrAuthFailed. Any other handshake failure hands the session
// to the reconnect policy and returns nil.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.state == StateConnected && m.conn != nil && m.conn.IsConnected() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	_, err, _ := m.connectGroup.Do("connect", func() (interface{}, error) {
		m.mu.Lock()
		if m.state == StateConnected && m.conn != nil && m.conn.IsConnected() {
			m.mu.Unlock()
			return nil, nil
		}

		gen := m.newSessionLocked()
		m.state = StateConnecting
		m.token = token
		m.attempt = 0
		m.lastAttemptAt = m.clock.Now()
		m.mu.Unlock()

		return nil, m.establish(ctx, gen)
	})
	return err
}

// Disconnect tears everything down: pending timers, the in-flight
// connect if any, the transport, and the room set. Idempotent; this is
// the only way a session ends for good.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}

	m.gen++
	if m.sessDone != nil {
		close(m.sessDone)
		m.sessDone = nil
	}
	m.stopTimersLocked()

	// A Connect issued after this teardown must start its own flight, not
	// join one the teardown just superseded.
	m.connectGroup.Forget("connect")

	c := m.conn
	m.conn = nil
	wasConnected := m.state == StateConnected
	m.state = StateDisconnected
	m.attempt = 0
	m.token = ""
	m.connID = ""
	m.userID = ""
	m.mu.Unlock()

	m.rooms.Clear()
	if c != nil {
		c.Close()
	}
	if wasConnected {
		m.dispatchLocal(EventDisconnect, reasonPayload{Reason: ReasonExplicit.String()})
	}

	m.logger.Info("disconnected")
	return nil
}

// Join subscribes to a chat room. The set is updated immediately; the
// wire command goes out only while connected and is replayed after every
// reconnect. Never errors on transport trouble.
func (m *Manager) Join(roomID string) {
	if roomID == "" {
		return
	}

	added := m.rooms.Add(roomID)

	c, ok := m.liveConn()
	if !ok || !added {
		return
	}
	m.sendEvent(c, wire.EventJoinChat, wire.JoinChat{ChatID: roomID})
}

// Leave unsubscribes from a chat room. A room left while offline is
// never replayed.
func (m *Manager) Leave(roomID string) {
	removed := m.rooms.Remove(roomID)

	c, ok := m.liveConn()
	if !ok || !removed {
		return
	}
	m.sendEvent(c, wire.EventLeaveChat, wire.LeaveChat{ChatID: roomID})
}

// Send delivers a chat message on a best-effort basis. While not
// connected the message is dropped, not queued; the call still returns
// nil because delivery trouble is the reconnect machinery's problem.
func (m *Manager) Send(chatID, content string) error {
	c, ok := m.liveConn()
	if !ok {
		m.logger.Debug("dropping message while not connected", "chat_id", chatID)
		return nil
	}

	m.sendEvent(c, wire.EventSendMessage, wire.SendMessage{
		ChatID:    chatID,
		Content:   content,
		ClientRef: uuid.NewString(),
	})
	return nil
}

// SendTyping delivers a typing indicator, best-effort like Send.
func (m *Manager) SendTyping(chatID string, isTyping bool) error {
	c, ok := m.liveConn()
	if !ok {
		return nil
	}

	m.sendEvent(c, wire.EventTyping, wire.Typing{ChatID: chatID, IsTyping: isTyping})
	return nil
}

// On registers a listener for a server or lifecycle event.
func (m *Manager) On(event string, fn dispatch.Handler) dispatch.Handle {
	return m.disp.On(event, fn)
}

// Off removes a listener registration.
func (m *Manager) Off(h dispatch.Handle) {
	m.disp.Off(h)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectionID returns the server-assigned socket id, empty until the
// handshake completes.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// UserID returns the authenticated user id from the handshake ack.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Rooms returns the currently tracked room set.
func (m *Manager) Rooms() []string {
	return m.rooms.Snapshot()
}

// Notifications returns the notification buffer.
func (m *Manager) Notifications() *notify.Buffer {
	return m.notes
}

// newSessionLocked starts a new session generation, invalidating every
// outstanding timer, read loop, and handshake. Callers hold m.mu.
func (m *Manager) newSessionLocked() uint64 {
	m.gen++
	if m.sessDone != nil {
		close(m.sessDone)
	}
	m.sessDone = make(chan struct{})
	m.stopTimersLocked()
	return m.gen
}

func (m *Manager) stopTimersLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.rebuildTimer != nil {
		m.rebuildTimer.Stop()
		m.rebuildTimer = nil
	}
}

func (m *Manager) liveConn() (transport.Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.conn == nil {
		return nil, false
	}
	return m.conn, true
}

// establish runs the initial connect attempt for a session.
func (m *Manager) establish(ctx context.Context, gen uint64) error {
	ack, c, err := m.connectOnce(ctx, gen)

	switch {
	case err == nil:
		m.adopt(gen, c, ack)
		return nil

	case errors.Is(err, ErrAuthFailed):
		m.failAuth(gen, err)
		return err

	case ctx.Err() != nil:
		m.mu.Lock()
		if gen == m.gen {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		return ctx.Err()

	default:
		m.logger.Warn("connect failed", "error", err)
		m.dispatchLocal(EventConnectError, reasonPayload{Reason: classifyClose(err).String()})
		m.scheduleRetry(gen)
		return nil
	}
}

// connectOnce dials and waits for the server's connection ack, allowing
// itself exactly one token refresh if the credential is rejected.
func (m *Manager) connectOnce(ctx context.Context, gen uint64) (wire.ConnectionAck, transport.Conn, error) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	ack, c, err := m.dialAndAck(ctx, token)
	if !errors.Is(err, errCredentialsRejected) {
		return ack, c, err
	}

	m.logger.Info("credentials rejected, refreshing token")

	fresh, rerr := m.tokens.Token(ctx)
	if rerr != nil {
		return wire.ConnectionAck{}, nil, fmt.Errorf("%w: refresh token: %v", ErrAuthFailed, rerr)
	}

	m.mu.Lock()
	if gen == m.gen {
		m.token = fresh
	}
	m.mu.Unlock()

	ack, c, err = m.dialAndAck(ctx, fresh)
	if errors.Is(err, errCredentialsRejected) {
		return wire.ConnectionAck{}, nil, ErrAuthFailed
	}
	return ack, c, err
}

// dialAndAck opens a transport and waits for the connection event. The
// server accepts unauthenticated sockets and reports rejection in the
// ack payload, so the ack wait needs a deadline of its own on top of the
// dial's; each phase gets HandshakeTimeout, so the worst case is twice it.
func (m *Manager) dialAndAck(ctx context.Context, token string) (wire.ConnectionAck, transport.Conn, error) {
	tcfg := transport.Config{
		URL:          m.cfg.URL,
		Token:        token,
		DialTimeout:  m.policy.HandshakeTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		PingInterval: m.cfg.PingInterval,
		PongTimeout:  m.cfg.PongTimeout,
		BufferSize:   m.cfg.MessageBufferSize,
	}

	c := m.newConn(tcfg)
	if err := c.Connect(ctx); err != nil {
		return wire.ConnectionAck{}, nil, err
	}

	deadline := time.After(m.policy.HandshakeTimeout)
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return wire.ConnectionAck{}, nil, ctx.Err()

		case <-deadline:
			c.Close()
			return wire.ConnectionAck{}, nil, errHandshakeTimeout

		case err := <-c.Errors():
			c.Close()
			return wire.ConnectionAck{}, nil, err

		case msg := <-c.Messages():
			env, err := wire.Decode(msg.Data)
			if err != nil {
				m.logger.Warn("dropping malformed frame during handshake", "error", err)
				continue
			}
			if env.Event != wire.EventConnection {
				// The ack is always the server's first event.
				continue
			}

			var ack wire.ConnectionAck
			if err := env.DecodeData(&ack); err != nil {
				c.Close()
				return wire.ConnectionAck{}, nil, err
			}
			if !ack.Authenticated {
				c.Close()
				return wire.ConnectionAck{}, nil,
					fmt.Errorf("%w: %s", errCredentialsRejected, ack.Error)
			}
			return ack, c, nil
		}
	}
}

func (m *Manager) newConn(cfg transport.Config) transport.Conn {
	if m.cfg.NewConn != nil {
		return m.cfg.NewConn(cfg, m.logger.With("component", "transport"))
	}
	return transport.New(cfg, m.logger.With("component", "transport"))
}

// adopt installs a freshly acked connection, unless the session it was
// started under has been superseded, in which case the connection is
// discarded instead of resurrecting torn-down state.
func (m *Manager) adopt(gen uint64, c transport.Conn, ack wire.ConnectionAck) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		c.Close()
		return
	}

	reconnected := m.attempt > 0
	attempt := m.attempt
	m.conn = c
	m.state = StateConnected
	m.connID = ack.SID
	m.userID = ack.UserID
	m.attempt = 0
	done := m.sessDone
	m.mu.Unlock()

	go m.readLoop(gen, c, done)

	m.replayRooms(c)

	if reconnected {
		m.logger.Info("reconnected", "attempt", attempt, "sid", ack.SID)
		m.dispatchLocal(EventReconnect, attemptPayload{Attempt: attempt})
	} else {
		m.logger.Info("connected", "sid", ack.SID, "user_id", ack.UserID)
		b, _ := json.Marshal(ack)
		m.disp.Dispatch(dispatch.Event{Name: EventConnect, Data: b})
	}
}

// replayRooms re-sends a join for every tracked room. Joins are
// commutative so order does not matter.
func (m *Manager) replayRooms(c transport.Conn) {
	for _, roomID := range m.rooms.Snapshot() {
		m.sendEvent(c, wire.EventJoinChat, wire.JoinChat{ChatID: roomID})
	}
}

// readLoop pumps one connection's frames into the dispatcher until the
// link drops or the session ends.
func (m *Manager) readLoop(gen uint64, c transport.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return

		case err := <-c.Errors():
			m.handleLoss(gen, c, err)
			return

		case msg := <-c.Messages():
			m.handleFrame(msg)
		}
	}
}

// handleFrame decodes one inbound frame and fans it out. Malformed
// frames are protocol errors: logged, dropped, connection untouched.
func (m *Manager) handleFrame(msg transport.Inbound) {
	env, err := wire.Decode(msg.Data)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	if env.Event == wire.EventNotification {
		var n wire.Notification
		if err := env.DecodeData(&n); err != nil {
			m.logger.Warn("dropping malformed notification", "error", err)
			return
		}
		m.notes.Add(n, env.Data, msg.ReceivedAt)
	}

	m.disp.Dispatch(dispatch.Event{Name: env.Event, Data: env.Data})
}

// handleLoss reacts to a dropped connection: classify, announce, and
// hand the session to the retry machinery.
func (m *Manager) handleLoss(gen uint64, c transport.Conn, err error) {
	reason := classifyClose(err)

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	c.Close()

	m.logger.Warn("connection lost", "reason", reason.String(), "error", err)
	m.dispatchLocal(EventDisconnect, reasonPayload{Reason: reason.String()})

	m.scheduleRetry(gen)
}

// scheduleRetry arms the next reconnect attempt, or parks the session in
// Failed (and optionally arms the fresh rebuild) once the ceiling is hit.
func (m *Manager) scheduleRetry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	m.attempt++
	attempt := m.attempt

	if m.policy.Exhausted(attempt) {
		m.state = StateFailed
		if d := m.policy.GiveUpRebuildDelay; d > 0 {
			m.rebuildTimer = m.clock.AfterFunc(d, func() { m.rebuild(gen) })
		}
		m.mu.Unlock()

		m.logger.Error("reconnect attempts exhausted", "attempts", attempt-1)
		m.dispatchLocal(EventReconnectFailed, attemptPayload{Attempt: attempt - 1})
		return
	}

	m.state = StateReconnecting
	m.lastAttemptAt = m.clock.Now()
	delay := m.policy.Delay(attempt)
	m.retryTimer = m.clock.AfterFunc(delay, func() { m.retry(gen) })
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	m.dispatchLocal(EventReconnectAttempt, attemptPayload{Attempt: attempt})
}

// retry runs one reconnect attempt from a timer callback.
func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ack, c, err := m.connectOnce(context.Background(), gen)

	switch {
	case err == nil:
		m.adopt(gen, c, ack)

	case errors.Is(err, ErrAuthFailed):
		m.failAuth(gen, err)

	default:
		m.logger.Warn("reconnect attempt failed", "error", err)
		m.dispatchLocal(EventConnectError, reasonPayload{Reason: classifyClose(err).String()})
		m.scheduleRetry(gen)
	}
}

// rebuild starts a fresh session after the give-up delay: new
// generation, attempt counter reset, same token and room set.
func (m *Manager) rebuild(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateFailed {
		m.mu.Unlock()
		return
	}

	newGen := m.newSessionLocked()
	m.state = StateConnecting
	m.attempt = 0
	m.lastAttemptAt = m.clock.Now()
	m.mu.Unlock()

	m.logger.Info("rebuilding connection after give-up delay")

	ack, c, err := m.connectOnce(context.Background(), newGen)

	switch {
	case err == nil:
		m.adopt(newGen, c, ack)

	case errors.Is(err, ErrAuthFailed):
		m.failAuth(newGen, err)

	default:
		m.logger.Warn("rebuild failed", "error", err)
		m.dispatchLocal(EventConnectError, reasonPayload{Reason: classifyClose(err).String()})
		m.scheduleRetry(newGen)
	}
}

// failAuth parks the session after a terminal credential rejection. No
// further retries; the application is expected to sign the user out.
func (m *Manager) failAuth(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = StateFailed
	m.stopTimersLocked()
	m.mu.Unlock()

	m.logger.Error("authentication failed", "error", err)
	m.dispatchLocal(EventAuthFailed, reasonPayload{Reason: err.Error()})
}

func (m *Manager) sendEvent(c transport.Conn, event string, payload interface{}) {
	data, err := wire.Encode(event, payload)
	if err != nil {
		m.logger.Error("encode outbound event", "event", event, "error", err)
		return
	}
	if err := c.Send(data); err != nil {
		m.logger.Warn("send failed", "event", event, "error", err)
	}
}

func (m *Manager) dispatchLocal(event string, payload interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		b = nil
	}
	m.disp.Dispatch(dispatch.Event{Name: event, Data: b})
}
