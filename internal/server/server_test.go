package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vburojevic/opctl/internal/auth"
	"github.com/vburojevic/opctl/internal/config"
	"github.com/vburojevic/opctl/internal/logcapture"
	"github.com/vburojevic/opctl/internal/platform/platformtest"
	"github.com/vburojevic/opctl/internal/protocol"
	"github.com/vburojevic/opctl/internal/terminal"
)

type fixture struct {
	srv     *Server
	http    *httptest.Server
	fake    *platformtest.Fake
	capture *logcapture.Capture
}

func newFixture(t *testing.T, key string) *fixture {
	t.Helper()

	capture := logcapture.New(10, logcapture.WithEncoderConfig(zapcore.EncoderConfig{MessageKey: "msg"}))
	capture.Start()
	t.Cleanup(capture.Stop)

	fake := platformtest.New()
	fake.Properties = "motd=hi\n"
	t.Cleanup(fake.Close)

	tokens, err := auth.NewTokenManager("", time.Hour, nil)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.AccessKey = key

	srv := New(cfg, Deps{Platform: fake, Capture: capture, Tokens: tokens, Logger: zap.L()})
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{srv: srv, http: ts, fake: fake, capture: capture}
}

func (f *fixture) login(t *testing.T, key string) (*http.Response, string) {
	t.Helper()
	body := `{"accessKey":"` + auth.Digest(key) + `"}`
	resp, err := http.Post(f.http.URL+"/api/auth", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out.Token
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.http.URL, "http")+"/terminal", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	m, err := protocol.DecodeEvent(data)
	require.NoError(t, err)
	return m
}

func authenticate(t *testing.T, ws *websocket.Conn, key string) {
	t.Helper()
	data, err := protocol.Encode(protocol.Auth{Credential: auth.DoubleDigest(key)})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

func TestControlRequiresLogin(t *testing.T) {
	f := newFixture(t, "secret")

	resp, err := http.Get(f.http.URL + "/api/control/properties")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.login(t, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, token := f.login(t, "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, token)

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/api/control/properties", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	var body struct {
		Properties string `json:"properties"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "motd=hi\n", body.Properties)
}

func TestMetricsRequireLogin(t *testing.T) {
	f := newFixture(t, "secret")

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, token := f.login(t, "secret")
	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPlayerRoutesRequireLogin(t *testing.T) {
	f := newFixture(t, "secret")

	for _, target := range []string{"/api/players/op?name=alex", "/api/whitelist/add?name=alex"} {
		resp, err := http.Post(f.http.URL+target, "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, target)
	}
	assert.Empty(t, f.fake.PlayerActions())

	_, token := f.login(t, "secret")
	for _, target := range []string{"/api/players/op?name=alex", "/api/whitelist/add?name=alex"} {
		req, err := http.NewRequest(http.MethodPost, f.http.URL+target, nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, target)
	}
	assert.Equal(t, []string{"op alex", "whitelist add alex"}, f.fake.PlayerActions())
}

func TestCapturedLogsReachTerminal(t *testing.T) {
	f := newFixture(t, "secret")
	zap.L().Info("before connect")

	ws := f.dial(t)
	authenticate(t, ws, "secret")

	first, ok := read(t, ws).(protocol.Init)
	require.True(t, ok)
	assert.Contains(t, first.Lines, "before connect")

	zap.L().Info("Server started")
	for {
		msg, ok := read(t, ws).(protocol.Log)
		require.True(t, ok)
		if msg.Line == "Server started" {
			break
		}
	}
}

func TestCaptureRestartDoesNotDuplicate(t *testing.T) {
	f := newFixture(t, "secret")
	ws := f.dial(t)
	authenticate(t, ws, "secret")
	_, ok := read(t, ws).(protocol.Init)
	require.True(t, ok)

	// A second Start and a reconfiguration must not add another delivery path.
	f.capture.Start()
	cfg := config.Default()
	cfg.AccessKey = "secret"
	f.srv.Reconfigure(cfg)

	zap.L().Info("once")
	zap.L().Info("marker")

	var lines []string
	for {
		msg, ok := read(t, ws).(protocol.Log)
		require.True(t, ok)
		lines = append(lines, msg.Line)
		if msg.Line == "marker" {
			break
		}
	}
	count := 0
	for _, l := range lines {
		if l == "once" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestReconfigureSwapsAccessKey(t *testing.T) {
	f := newFixture(t, "old")

	kept := f.dial(t)
	authenticate(t, kept, "old")
	_, ok := read(t, kept).(protocol.Init)
	require.True(t, ok)

	cfg := config.Default()
	cfg.AccessKey = "new"
	f.srv.Reconfigure(cfg)

	stale := f.dial(t)
	authenticate(t, stale, "old")
	require.NoError(t, stale.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := stale.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	fresh := f.dial(t)
	authenticate(t, fresh, "new")
	_, ok = read(t, fresh).(protocol.Init)
	assert.True(t, ok)

	resp, _ := f.login(t, "new")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The session authenticated before the swap still receives broadcasts.
	f.srv.Registry().Broadcast(protocol.Log{Line: "still here"})
	assert.Equal(t, protocol.Log{Line: "still here"}, read(t, kept))
}

func TestServeClosesChannelsOnShutdown(t *testing.T) {
	capture := logcapture.New(10)
	fake := platformtest.New()
	t.Cleanup(fake.Close)
	tokens, err := auth.NewTokenManager("", 0, nil)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.AccessKey = "secret"
	srv := New(cfg, Deps{Platform: fake, Capture: capture, Tokens: tokens})
	defer srv.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/terminal", nil)
	require.NoError(t, err)
	defer ws.Close()
	authenticate(t, ws, "secret")
	_, ok := read(t, ws).(protocol.Init)
	require.True(t, ok)

	cancel()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, terminal.ShutdownReason, closeErr.Text)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
