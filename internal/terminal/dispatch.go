package terminal

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/auth"
	"github.com/vburojevic/opctl/internal/metrics"
	"github.com/vburojevic/opctl/internal/platform"
	"github.com/vburojevic/opctl/internal/protocol"
)

// handle processes one inbound frame and reports whether the channel stays open.
func (c *conn) handle(frame []byte) (open bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("terminal handler panicked", zap.Error(fmt.Errorf("%v", r)))
			c.reply(protocol.Error{Message: internalError})
			open = true
		}
	}()

	if !c.limiter.Allow() {
		c.reply(protocol.Error{Message: tooManyRequests})
		return true
	}

	msg, err := protocol.DecodeRequest(frame)
	if err != nil {
		return c.reject(err)
	}

	switch m := msg.(type) {
	case protocol.Auth:
		return c.authenticate(m)
	case protocol.Command:
		if !c.authed {
			return c.unauthorized()
		}
		c.execute(m.Command)
	case protocol.AutocompleteRequest:
		if !c.authed {
			return c.unauthorized()
		}
		c.autocomplete(m)
	}
	return true
}

// reject applies the error policy for frames that did not decode. A known kind
// with the wrong payload is a violation before authentication.
func (c *conn) reject(err error) bool {
	var payloadErr *protocol.PayloadError
	switch {
	case errors.As(err, &payloadErr):
		if !c.authed {
			return c.unauthorized()
		}
		c.reply(protocol.Error{Message: unexpectedData})
	case errors.Is(err, protocol.ErrUnknownKind):
		c.reply(protocol.Error{Message: unexpectedPacket})
	default:
		c.reply(protocol.Error{Message: err.Error()})
	}
	return true
}

func (c *conn) authenticate(m protocol.Auth) bool {
	if c.ep.credential == "" || !auth.Equal(m.Credential, c.ep.credential) {
		metrics.AuthFailures.WithLabelValues("terminal").Inc()
		c.logger.Info("terminal authentication failed")
		return c.unauthorized()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ep.registry.Register(c)
	c.authed = true

	data, err := protocol.Encode(protocol.Init{Lines: c.ep.history.RecentLogs()})
	if err != nil {
		c.logger.Error("failed to encode history", zap.Error(err))
		return true
	}
	if err := c.enqueue(data); err != nil {
		c.logger.Debug("failed to queue history", zap.Error(err))
	}
	return true
}

func (c *conn) unauthorized() bool {
	_ = c.Close(websocket.ClosePolicyViolation, UnauthorizedReason)
	return false
}

func (c *conn) execute(command string) {
	metrics.CommandsDispatched.Inc()
	c.logger.Debug("dispatching terminal command", zap.String("command", command))

	p := c.ep.platform
	p.RunOnHostContext(func() {
		p.ExecuteCommand(command)
	})
}

func (c *conn) autocomplete(m protocol.AutocompleteRequest) {
	var candidates []string
	if m.WantsCommands() {
		candidates = c.ep.platform.RecognizedCommands()
	} else {
		candidates = platform.PlayerNames(c.ep.platform.OnlinePlayers())
	}
	c.reply(protocol.AutocompleteResponse{Candidates: candidates})
}

func (c *conn) reply(msg protocol.Message) {
	if err := c.Send(msg); err != nil {
		c.logger.Debug("failed to queue reply", zap.String("kind", string(msg.Kind())), zap.Error(err))
	}
}
