package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/homehub-core/internal/infrastructure/config"
)

// State is the connection state of the Manager.
type State string

// Connection states.
//
//	offline -> connecting -> connected
//	connected -> reconnecting -> connected | offline
//	any -> error when the initial connection cannot be established
//
// reconnecting -> offline happens when the reconnect attempt limit is
// exhausted, or on Shutdown.
const (
	StateOffline      State = "offline"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Event is a connection lifecycle notification.
type Event string

// Lifecycle events.
const (
	EventConnect    Event = "connect"
	EventDisconnect Event = "disconnect"
	EventReconnect  Event = "reconnect"
	EventError      Event = "error"
)

// Listener receives lifecycle events. err is set for disconnect and error.
// Listeners run synchronously on the paho callback goroutine and must not block.
type Listener func(ev Event, err error)

// Logger is the logging surface the manager needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// pahoClient is the subset of pahomqtt.Client the manager uses.
type pahoClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in arrival order on paho's router goroutine.
// They should not block; a returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Manager owns the single broker connection of the process.
//
// It is constructed once at start-up and passed to every consumer. Only the
// manager opens or closes the socket; everything else publishes and
// subscribes through it.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions registered while offline are applied on connect and
//     restored after every reconnect.
type Manager struct {
	cfg       config.MQTTConfig
	newClient func(*pahomqtt.ClientOptions) pahoClient
	logger    Logger

	// Connection retry policy. maxAttempts bounds both the initial
	// connection and each reconnect episode; zero means unlimited.
	retryInterval time.Duration
	maxInterval   time.Duration
	maxAttempts   uint

	mu            sync.RWMutex
	client        pahoClient
	state         State
	lastErr       error
	everConnected bool
	shuttingDown  bool
	reconnects    uint // attempts in the current reconnect episode

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	lisMu     sync.RWMutex
	listeners map[Event]map[uint64]Listener
	nextID    uint64
}

// NewManager creates a Manager in the offline state. Call Init to connect.
func NewManager(cfg config.MQTTConfig, logger Logger) *Manager {
	if logger == nil {
		logger = nopLogger{}
	}

	retry := max(time.Duration(cfg.Reconnect.InitialDelay)*time.Second, minRetryInterval)
	maxRetry := max(time.Duration(cfg.Reconnect.MaxDelay)*time.Second, retry)

	var attempts uint
	if cfg.Reconnect.MaxAttempts > 0 {
		attempts = uint(cfg.Reconnect.MaxAttempts)
	}

	return &Manager{
		cfg: cfg,
		newClient: func(opts *pahomqtt.ClientOptions) pahoClient {
			return pahomqtt.NewClient(opts)
		},
		logger:        logger,
		retryInterval: retry,
		maxInterval:   maxRetry,
		maxAttempts:   attempts,
		state:         StateOffline,
		subscriptions: make(map[string]subscription),
		listeners:     make(map[Event]map[uint64]Listener),
	}
}

// Init establishes the broker connection.
//
// Parameters:
//   - ctx: Bounds the initial connection attempts; it is not retained
//
// Returns:
//   - error: ErrConnectionFailed when every attempt failed or ctx ended
//
// Example:
//
//	m := mqtt.NewManager(cfg.MQTT, log.Component("mqtt"))
//	if err := m.Init(ctx); err != nil {
//	    return fmt.Errorf("connecting to MQTT: %w", err)
//	}
//	defer m.Shutdown()
//
// The initial connection is retried with exponential backoff (never less
// than one second apart) until it succeeds, ctx is cancelled, or the
// configured attempt limit is reached. On total failure the manager enters
// StateError, emits EventError and returns ErrConnectionFailed.
//
// Once connected, paho's auto-reconnect keeps the session alive and the
// manager reports reconnecting/reconnect transitions. If a reconnect
// episode uses up the attempt limit the manager disconnects, enters
// StateOffline and emits EventDisconnect; Init may then be called again.
// Calling Init on an already initialised manager is a no-op.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.client != nil {
		m.mu.Unlock()
		return nil
	}
	m.shuttingDown = false
	opts := buildClientOptions(m.cfg)
	configureLWT(opts, m.cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		m.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		m.handleReconnecting()
	})
	client := m.newClient(opts)
	m.client = client
	m.mu.Unlock()

	m.setState(StateConnecting, nil)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryInterval
	b.MaxInterval = m.maxInterval
	b.RandomizationFactor = 0

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn("mqtt connect failed, retrying", "error", err, "retry_in", next.String())
		}),
	}
	if m.maxAttempts > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(m.maxAttempts))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		token := client.Connect()
		if !token.WaitTimeout(defaultConnectTimeout) {
			return struct{}{}, fmt.Errorf("%w: after %v", ErrTimeout, defaultConnectTimeout)
		}
		return struct{}{}, token.Error()
	}, retryOpts...)

	if err != nil {
		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()

		err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		m.setState(StateError, err)
		m.emit(EventError, err)
		return err
	}

	// paho runs the OnConnect handler asynchronously; whichever of the two
	// paths gets here first performs the transition.
	m.markConnected()
	return nil
}

// Shutdown publishes a graceful offline status and disconnects.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	client := m.client
	wasConnected := m.state == StateConnected
	m.shuttingDown = true
	m.client = nil
	m.mu.Unlock()

	if client == nil {
		return
	}

	if wasConnected && client.IsConnected() {
		token := client.Publish(Topics{}.SystemStatus(), byte(m.cfg.QoS), true, buildOfflinePayload(m.cfg.Broker.ClientID))
		token.WaitTimeout(defaultPublishTimeout)
	}
	client.Disconnect(defaultDisconnectQuiesce)

	m.setState(StateOffline, nil)
	if wasConnected {
		m.emit(EventDisconnect, nil)
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the error behind the most recent disconnect or failure.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// IsConnected reports whether commands can be published right now.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected && m.client != nil && m.client.IsConnected()
}

// HealthCheck returns ErrNotConnected unless the connection is up.
func (m *Manager) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !m.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// On registers fn for ev and returns a function that removes it.
func (m *Manager) On(ev Event, fn Listener) (unsubscribe func()) {
	m.lisMu.Lock()
	defer m.lisMu.Unlock()

	m.nextID++
	id := m.nextID
	if m.listeners[ev] == nil {
		m.listeners[ev] = make(map[uint64]Listener)
	}
	m.listeners[ev][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.lisMu.Lock()
			delete(m.listeners[ev], id)
			m.lisMu.Unlock()
		})
	}
}

func (m *Manager) emit(ev Event, err error) {
	m.lisMu.RLock()
	fns := make([]Listener, 0, len(m.listeners[ev]))
	for _, fn := range m.listeners[ev] {
		fns = append(fns, fn)
	}
	m.lisMu.RUnlock()

	for _, fn := range fns {
		m.safeCall(ev, fn, err)
	}
}

func (m *Manager) safeCall(ev Event, fn Listener, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("mqtt listener panic recovered", "event", string(ev), "panic", r)
		}
	}()
	fn(ev, err)
}

func (m *Manager) setState(s State, err error) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	if err != nil {
		m.lastErr = err
	}
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("mqtt state changed", "from", string(prev), "to", string(s))
	}
}

// markConnected moves to StateConnected and emits connect or reconnect.
// It reports whether this call performed the transition.
func (m *Manager) markConnected() bool {
	m.mu.Lock()
	if m.state == StateConnected || m.client == nil {
		m.mu.Unlock()
		return false
	}
	reconnect := m.everConnected
	m.state = StateConnected
	m.everConnected = true
	m.reconnects = 0
	m.lastErr = nil
	m.mu.Unlock()

	if reconnect {
		m.logger.Info("mqtt reconnected", "broker", m.cfg.Broker.Host)
		m.emit(EventReconnect, nil)
	} else {
		m.logger.Info("mqtt connected", "broker", m.cfg.Broker.Host)
		m.emit(EventConnect, nil)
	}
	return true
}

// handleConnect runs on every successful (re)connection.
func (m *Manager) handleConnect() {
	m.markConnected()
	m.restoreSubscriptions()
	m.publishOnlineStatus()
}

func (m *Manager) handleConnectionLost(err error) {
	m.mu.RLock()
	stopping := m.shuttingDown
	m.mu.RUnlock()
	if stopping {
		return
	}

	m.logger.Warn("mqtt connection lost", "error", err)
	m.setState(StateReconnecting, err)
	m.emit(EventDisconnect, err)
}

// handleReconnecting runs before each reconnect attempt paho makes. Past
// the attempt limit it abandons the client instead.
func (m *Manager) handleReconnecting() {
	m.mu.Lock()
	if m.shuttingDown || m.client == nil {
		m.mu.Unlock()
		return
	}
	m.reconnects++
	if m.maxAttempts == 0 || m.reconnects <= m.maxAttempts {
		m.mu.Unlock()
		m.setState(StateReconnecting, nil)
		return
	}
	client := m.client
	m.client = nil
	m.reconnects = 0
	m.mu.Unlock()

	err := fmt.Errorf("%w: gave up reconnecting after %d attempts", ErrConnectionFailed, m.maxAttempts)
	m.logger.Error("mqtt reconnect abandoned", "attempts", m.maxAttempts)

	// paho calls this from its reconnect loop, which Disconnect waits on.
	go client.Disconnect(0)

	m.setState(StateOffline, err)
	m.emit(EventDisconnect, err)
}

// restoreSubscriptions subscribes every tracked topic on the broker.
func (m *Manager) restoreSubscriptions() {
	client := m.currentClient()
	if client == nil {
		return
	}

	m.subMu.RLock()
	subs := make([]subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.subMu.RUnlock()

	for _, sub := range subs {
		token := client.Subscribe(sub.topic, sub.qos, m.wrapHandler(sub.handler))
		if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
			m.logger.Warn("mqtt resubscribe failed", "topic", sub.topic, "error", token.Error())
		}
	}
}

func (m *Manager) publishOnlineStatus() {
	client := m.currentClient()
	if client == nil {
		return
	}
	client.Publish(Topics{}.SystemStatus(), byte(m.cfg.QoS), true, buildOnlinePayload(m.cfg.Broker.ClientID))
}

func (m *Manager) currentClient() pahoClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (m *Manager) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("mqtt handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			m.logger.Warn("mqtt handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
