package control

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/platform"
)

// PlayerRoutes returns the /api/players sub-router. Targets are named with
// the name query parameter, or uuid for a player that is online.
func (h *Handler) PlayerRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listPlayers)
	r.Post("/op", h.playerAction("players.op", false, func(name string, _ *http.Request) {
		h.platform.SetOp(name, true)
	}))
	r.Post("/deop", h.playerAction("players.deop", false, func(name string, _ *http.Request) {
		h.platform.SetOp(name, false)
	}))
	r.Post("/kick", h.playerAction("players.kick", true, func(name string, r *http.Request) {
		h.platform.Kick(name, r.URL.Query().Get("r"))
	}))
	r.Post("/ban", h.playerAction("players.ban", false, func(name string, r *http.Request) {
		h.platform.Ban(name, r.URL.Query().Get("r"))
	}))
	r.Post("/pardon", h.playerAction("players.pardon", false, func(name string, _ *http.Request) {
		h.platform.Pardon(name)
	}))
	r.Post("/gamemode", h.gameMode)
	rejectUnknown(r)
	return r
}

// WhitelistRoutes returns the /api/whitelist sub-router.
func (h *Handler) WhitelistRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/add", h.playerAction("whitelist.add", false, func(name string, _ *http.Request) {
		h.platform.SetWhitelisted(name, true)
	}))
	r.Post("/remove", h.playerAction("whitelist.remove", false, func(name string, _ *http.Request) {
		h.platform.SetWhitelisted(name, false)
	}))
	rejectUnknown(r)
	return r
}

func (h *Handler) listPlayers(w http.ResponseWriter, r *http.Request) {
	players := h.platform.OnlinePlayers()
	if players == nil {
		players = []platform.Player{}
	}
	respond(w, "players.list", response{Code: http.StatusOK, Players: &players})
}

// target resolves the player a request names. It answers the request itself
// and returns false when the target is missing, invalid, or must be online
// and is not.
func (h *Handler) target(w http.ResponseWriter, r *http.Request, op string, mustBeOnline bool) (string, bool) {
	query := r.URL.Query()
	online := h.platform.OnlinePlayers()

	if id := query.Get("uuid"); id != "" {
		p, found := platform.FindPlayer(online, id)
		if !found {
			respond(w, op, response{Code: http.StatusNotFound, Error: "no online player with that uuid"})
			return "", false
		}
		return p.Name, true
	}

	name := query.Get("name")
	if !platform.ValidPlayerName(name) {
		respond(w, op, response{Code: http.StatusBadRequest, Error: "name must be 1-16 letters, digits or underscores"})
		return "", false
	}
	if p, found := platform.FindPlayer(online, name); found {
		return p.Name, true
	}
	if mustBeOnline {
		respond(w, op, response{Code: http.StatusForbidden, Error: "player is not online"})
		return "", false
	}
	return name, true
}

func (h *Handler) playerAction(op string, mustBeOnline bool, apply func(name string, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := h.target(w, r, op, mustBeOnline)
		if !ok {
			return
		}
		h.logger.Info("player action requested", zap.String("op", op), zap.String("player", name), zap.String("remote", r.RemoteAddr))
		apply(name, r)
		respondStatus(w, op, http.StatusOK)
	}
}

func (h *Handler) gameMode(w http.ResponseWriter, r *http.Request) {
	const op = "players.gamemode"
	mode, err := platform.ParseGameMode(r.URL.Query().Get("gm"))
	if err != nil {
		respond(w, op, response{Code: http.StatusBadRequest, Error: err.Error()})
		return
	}
	h.playerAction(op, true, func(name string, _ *http.Request) {
		h.platform.SetGameMode(name, mode)
	})(w, r)
}
