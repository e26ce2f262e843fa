package control

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/opctl/internal/platform"
	"github.com/vburojevic/opctl/internal/platform/platformtest"
)

func newPlayerRouter(t *testing.T) (http.Handler, *platformtest.Fake) {
	t.Helper()
	fake := platformtest.New()
	t.Cleanup(fake.Close)
	fake.Players = []platform.Player{
		{Name: "Alex", UUID: "069a79f4-44e9-4726-a5be-fca90e38aaf5"},
		{Name: "steve"},
	}

	h := New(fake, nil)
	r := chi.NewRouter()
	r.Mount("/api/players", h.PlayerRoutes())
	r.Mount("/api/whitelist", h.WhitelistRoutes())
	return r, fake
}

func TestListPlayers(t *testing.T) {
	h, fake := newPlayerRouter(t)

	rec := do(h, http.MethodGet, "/api/players", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	require.NotNil(t, res.Players)
	assert.Equal(t, fake.Players, *res.Players)

	fake.Players = nil
	rec = do(h, http.MethodGet, "/api/players/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":200,"players":[]}`, rec.Body.String())
}

func TestPlayerActions(t *testing.T) {
	h, fake := newPlayerRouter(t)

	for _, target := range []string{
		"/api/players/op?name=alex",
		"/api/players/deop?uuid=069A79F4-44E9-4726-A5BE-FCA90E38AAF5",
		"/api/players/kick?name=steve&r=be+nice",
		"/api/players/ban?name=griefer&r=tnt",
		"/api/players/pardon?name=griefer",
		"/api/players/gamemode?name=steve&gm=1",
		"/api/whitelist/add?name=newbie",
		"/api/whitelist/remove?name=newbie",
	} {
		rec := do(h, http.MethodPost, target, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}

	assert.Equal(t, []string{
		"op Alex",
		"deop Alex",
		`kick steve "be nice"`,
		`ban griefer "tnt"`,
		"pardon griefer",
		"gamemode steve creative",
		"whitelist add newbie",
		"whitelist remove newbie",
	}, fake.PlayerActions())
}

func TestPlayerActionRejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		code   int
	}{
		{"missing name", http.MethodPost, "/api/players/op", http.StatusBadRequest},
		{"name with spaces", http.MethodPost, "/api/players/op?name=a+b", http.StatusBadRequest},
		{"name too long", http.MethodPost, "/api/whitelist/add?name=abcdefghijklmnopq", http.StatusBadRequest},
		{"unknown uuid", http.MethodPost, "/api/players/deop?uuid=00000000-0000-0000-0000-000000000000", http.StatusNotFound},
		{"kick offline player", http.MethodPost, "/api/players/kick?name=griefer", http.StatusForbidden},
		{"gamemode offline player", http.MethodPost, "/api/players/gamemode?name=griefer&gm=creative", http.StatusForbidden},
		{"bad gamemode", http.MethodPost, "/api/players/gamemode?name=steve&gm=hardcore", http.StatusBadRequest},
		{"missing gamemode", http.MethodPost, "/api/players/gamemode?name=steve", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/players/op?name=steve", http.StatusBadRequest},
		{"unknown action", http.MethodPost, "/api/players/smite?name=steve", http.StatusBadRequest},
		{"unknown whitelist action", http.MethodPost, "/api/whitelist/clear", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fake := newPlayerRouter(t)
			rec := do(h, tt.method, tt.target, "", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec).Code)
			assert.Empty(t, fake.PlayerActions())
		})
	}
}
