// Package attach is the operator side of the terminal channel.
package attach

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vburojevic/opctl/internal/auth"
	"github.com/vburojevic/opctl/internal/protocol"
)

// Autocomplete selectors understood by the server.
const (
	SelectCommands = protocol.SelectorCommands
	SelectPlayers  = 2
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
	eventBuffer             = 256
)

var (
	// ErrUnauthorized is returned when the server rejects the access key.
	ErrUnauthorized = errors.New("access key rejected")
	// ErrServerStopping is reported when the server closes the channel on shutdown.
	ErrServerStopping = errors.New("server is stopping")
)

// Options configure Dial.
type Options struct {
	// Address is host:port or an http(s)/ws(s) URL.
	Address          string
	AccessKey        string
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Client is an authenticated terminal channel.
type Client struct {
	ws      *websocket.Conn
	history []string
	events  chan protocol.Message

	writeMu sync.Mutex

	mu  sync.Mutex
	err error
}

// TerminalURL turns an address into the terminal websocket URL.
func TerminalURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("address is required")
	}
	if !strings.Contains(address, "://") {
		address = "ws://" + address
	}

	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid address %q: missing host", address)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/terminal"
	}
	return u.String(), nil
}

// Dial opens a channel, authenticates and waits for the history snapshot.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	target, err := TerminalURL(opts.Address)
	if err != nil {
		return nil, err
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout, Proxy: http.ProxyFromEnvironment}
	ws, _, err := dialer.DialContext(ctx, target, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", target, err)
	}

	c := &Client{ws: ws, events: make(chan protocol.Message, eventBuffer)}
	if err := c.send(protocol.Auth{Credential: auth.DoubleDigest(opts.AccessKey)}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)

	for {
		msg, err := c.read()
		if err != nil {
			ws.Close()
			if err := translateClose(err); err != nil {
				return nil, err
			}
			return nil, errors.New("channel closed before authentication completed")
		}
		if first, ok := msg.(protocol.Init); ok {
			c.history = first.Lines
			break
		}
	}

	_ = ws.SetReadDeadline(time.Time{})
	go c.readLoop()
	return c, nil
}

// History returns the lines the server sent on authentication, oldest first.
func (c *Client) History() []string { return c.history }

// Events delivers server messages until the channel closes, then is closed.
func (c *Client) Events() <-chan protocol.Message { return c.events }

// Err reports why the channel closed. It is nil while open and after a
// normal close initiated by Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Command sends a console command. The server never replies to it.
func (c *Client) Command(command string) error {
	return c.send(protocol.Command{Command: command})
}

// Autocomplete requests candidates; the answer arrives on Events.
func (c *Client) Autocomplete(selector int) error {
	return c.send(protocol.AutocompleteRequest{Selector: float64(selector)})
}

// Close closes the channel normally.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Client) send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) read() (protocol.Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.DecodeEvent(data)
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		msg, err := c.read()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrUnknownKind) {
				continue
			}
			var payloadErr *protocol.PayloadError
			if errors.As(err, &payloadErr) {
				continue
			}
			c.mu.Lock()
			c.err = translateClose(err)
			c.mu.Unlock()
			return
		}
		c.events <- msg
	}
}

func translateClose(err error) error {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	switch closeErr.Code {
	case websocket.ClosePolicyViolation:
		return ErrUnauthorized
	case websocket.CloseNormalClosure:
		if closeErr.Text == protocol.ReasonShutdown {
			return ErrServerStopping
		}
		return nil
	default:
		return fmt.Errorf("channel closed: %w", closeErr)
	}
}
