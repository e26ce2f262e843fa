package attach

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/opctl/internal/platform"
	"github.com/vburojevic/opctl/internal/platform/platformtest"
	"github.com/vburojevic/opctl/internal/protocol"
	"github.com/vburojevic/opctl/internal/session"
	"github.com/vburojevic/opctl/internal/terminal"
)

type history []string

func (h history) RecentLogs() []string { return h }

type env struct {
	srv      *httptest.Server
	registry *session.Registry
	fake     *platformtest.Fake
	group    *terminal.Group
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fake := platformtest.New()
	fake.Commands = []string{"say", "stop"}
	fake.Players = []platform.Player{{Name: "alex"}}

	e := &env{registry: session.NewRegistry(0, nil), fake: fake, group: terminal.NewGroup()}
	ep := terminal.NewEndpoint(terminal.Config{AccessKey: "key"}, terminal.Deps{
		Registry: e.registry,
		History:  history{"one", "two"},
		Platform: fake,
		Group:    e.group,
	})
	e.srv = httptest.NewServer(ep)
	t.Cleanup(func() {
		e.srv.Close()
		fake.Close()
	})
	return e
}

func (e *env) dial(t *testing.T, key string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return Dial(ctx, Options{Address: e.srv.URL, AccessKey: key})
}

func nextEvent(t *testing.T, c *Client) protocol.Message {
	t.Helper()
	select {
	case m, ok := <-c.Events():
		require.True(t, ok, "events closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return nil
	}
}

func TestTerminalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"localhost:3000", "ws://localhost:3000/terminal", false},
		{"http://panel.example.com", "ws://panel.example.com/terminal", false},
		{"https://panel.example.com/", "wss://panel.example.com/terminal", false},
		{"wss://panel.example.com/custom", "wss://panel.example.com/custom", false},
		{"ftp://x", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := TerminalURL(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialReceivesHistory(t *testing.T) {
	e := newEnv(t)
	c, err := e.dial(t, "key")
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []string{"one", "two"}, c.History())

	e.registry.Broadcast(protocol.Log{Line: "three"})
	assert.Equal(t, protocol.Log{Line: "three"}, nextEvent(t, c))
}

func TestDialRejectedKey(t *testing.T) {
	e := newEnv(t)
	_, err := e.dial(t, "nope")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCommandAndAutocomplete(t *testing.T) {
	e := newEnv(t)
	c, err := e.dial(t, "key")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Command("say hello"))
	require.Eventually(t, func() bool {
		return len(e.fake.ExecutedCommands()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Autocomplete(SelectCommands))
	assert.Equal(t, protocol.AutocompleteResponse{Candidates: []string{"say", "stop"}}, nextEvent(t, c))

	require.NoError(t, c.Autocomplete(SelectPlayers))
	assert.Equal(t, protocol.AutocompleteResponse{Candidates: []string{"alex"}}, nextEvent(t, c))
}

func TestServerShutdownEndsEvents(t *testing.T) {
	e := newEnv(t)
	c, err := e.dial(t, "key")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = e.group.Shutdown(ctx) }()

	for range c.Events() {
	}
	assert.ErrorIs(t, c.Err(), ErrServerStopping)
}
