// Package terminal serves the authenticated websocket channel operators use to
// follow logs and run console commands.
package terminal

import (
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/auth"
	"github.com/vburojevic/opctl/internal/platform"
	"github.com/vburojevic/opctl/internal/protocol"
	"github.com/vburojevic/opctl/internal/session"
)

// Close reasons sent to clients.
const (
	UnauthorizedReason = protocol.ReasonUnauthorized
	ShutdownReason     = protocol.ReasonShutdown
)

// Reply texts for recoverable protocol errors.
const (
	unexpectedData   = "Unexpected type of data."
	unexpectedPacket = "Unexpected type of packet."
	tooManyRequests  = "Too many requests."
	internalError    = "Internal error."
)

// Config tunes one endpoint. Zero values select defaults.
type Config struct {
	AccessKey         string
	SendBuffer        int
	MessagesPerSecond float64
	Burst             int
	PingInterval      time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.Burst <= 0 {
		c.Burst = 40
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	return c
}

// History is the source of the INIT snapshot.
type History interface {
	RecentLogs() []string
}

// Deps are the long-lived collaborators shared by every endpoint built during
// the process lifetime.
type Deps struct {
	Registry *session.Registry
	History  History
	Platform platform.Platform
	Group    *Group
	Logger   *zap.Logger
	Clock    clock.Clock
}

// Endpoint upgrades HTTP requests to terminal channels.
type Endpoint struct {
	cfg        Config
	credential string

	registry *session.Registry
	history  History
	platform platform.Platform
	group    *Group
	logger   *zap.Logger
	clock    clock.Clock
	upgrader websocket.Upgrader
}

// NewEndpoint creates an endpoint. An empty access key makes every AUTH fail.
func NewEndpoint(cfg Config, deps Deps) *Endpoint {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Group == nil {
		deps.Group = NewGroup()
	}

	var credential string
	if cfg.AccessKey != "" {
		credential = auth.DoubleDigest(cfg.AccessKey)
	}

	return &Endpoint{
		cfg:        cfg,
		credential: credential,
		registry:   deps.Registry,
		history:    deps.History,
		platform:   deps.Platform,
		group:      deps.Group,
		logger:     deps.Logger,
		clock:      deps.Clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Authentication happens in-band, so any origin may open a channel.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the channel until it closes.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !e.group.add() {
		http.Error(w, ShutdownReason, http.StatusServiceUnavailable)
		return
	}
	defer e.group.done()

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	c := newConn(e, ws)
	c.logger.Debug("terminal channel opened", zap.String("remote", r.RemoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()
	<-writerDone
	c.logger.Debug("terminal channel closed")
}

func (e *Endpoint) deadline(d time.Duration) time.Time {
	return e.clock.Now().Add(d)
}
