package session

import (
	"errors"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/metrics"
	"github.com/vburojevic/opctl/internal/protocol"
)

var (
	// ErrClosed is returned by a Sender whose channel has gone away.
	ErrClosed = errors.New("session closed")
	// ErrBufferFull is returned by a Sender that cannot queue another message.
	ErrBufferFull = errors.New("session send buffer full")
)

// DefaultMaxFailures is the number of consecutive broadcasts a session may
// leave undelivered before it is evicted. It also bounds the held backlog.
const DefaultMaxFailures = 3

// Sender is one live channel as seen by the registry.
type Sender interface {
	// ID uniquely identifies the channel.
	ID() string
	// Send queues a message without blocking on the transport.
	Send(msg protocol.Message) error
	// Close closes the channel with the given websocket close code and reason.
	Close(code int, reason string) error
}

// EvictCode and EvictReason are used when closing a session that keeps failing.
const (
	EvictCode   = 1013 // try again later
	EvictReason = "Too slow."
)

// Registry tracks authenticated sessions and fans messages out to them.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*member
	maxFailures int
	logger      *zap.Logger
}

// member holds messages the sender has not accepted yet, oldest first. A
// later message is never sent while an earlier one is still held.
type member struct {
	sender   Sender
	mu       sync.Mutex
	backlog  []protocol.Message
	failures int
}

// flush sends held messages in order and stops at the first refusal.
func (m *member) flush() error {
	for len(m.backlog) > 0 {
		if err := m.sender.Send(m.backlog[0]); err != nil {
			return err
		}
		m.backlog[0] = nil
		m.backlog = m.backlog[1:]
	}
	return nil
}

// NewRegistry creates an empty registry. maxFailures <= 0 selects DefaultMaxFailures.
func NewRegistry(maxFailures int, logger *zap.Logger) *Registry {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:    make(map[string]*member),
		maxFailures: maxFailures,
		logger:      logger,
	}
}

// Register adds s. Registering the same channel twice is a no-op.
func (r *Registry) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID()]; ok {
		return
	}
	r.sessions[s.ID()] = &member{sender: s}
	metrics.TerminalSessions.Set(float64(len(r.sessions)))
	r.logger.Debug("session registered", zap.String("session", s.ID()), zap.Int("sessions", len(r.sessions)))
}

// Unregister removes s. Removing an unknown channel is a no-op.
func (r *Registry) Unregister(s Sender) {
	r.remove(s.ID())
}

// Contains reports whether the channel id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Size returns the number of registered sessions.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Broadcast delivers msg to every session registered at call time. Delivery
// failures are handled per session and never reported to the caller. A session
// that cannot take msg keeps it and receives it, in order, before anything
// newer; one that stays behind for maxFailures broadcasts is evicted.
func (r *Registry) Broadcast(msg protocol.Message) {
	r.mu.RLock()
	snapshot := lo.Values(r.sessions)
	r.mu.RUnlock()

	for _, m := range snapshot {
		r.deliver(m, msg)
	}
}

func (r *Registry) deliver(m *member, msg protocol.Message) {
	m.mu.Lock()
	m.backlog = append(m.backlog, msg)
	err := m.flush()
	if err == nil {
		m.failures = 0
		m.mu.Unlock()
		return
	}
	m.failures++
	failures, held := m.failures, len(m.backlog)
	m.mu.Unlock()

	metrics.BroadcastFailures.Inc()
	id := m.sender.ID()

	if errors.Is(err, ErrClosed) {
		r.remove(id)
		return
	}

	if failures < r.maxFailures {
		r.logger.Debug("broadcast delivery deferred", zap.String("session", id), zap.Int("held", held), zap.Error(err))
		return
	}

	if r.remove(id) {
		metrics.SessionsEvicted.Inc()
		r.logger.Warn("evicting terminal session after repeated delivery failures", zap.String("session", id), zap.Int("held", held))
		go func() {
			_ = m.sender.Close(EvictCode, EvictReason)
		}()
	}
}

// remove deletes id and reports whether it was present.
func (r *Registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	metrics.TerminalSessions.Set(float64(len(r.sessions)))
	r.logger.Debug("session unregistered", zap.String("session", id), zap.Int("sessions", len(r.sessions)))
	return true
}
