// Package control routes the plain control API onto platform operations.
//
// Requests reaching this router are assumed to be authenticated already.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/metrics"
	"github.com/vburojevic/opctl/internal/platform"
)

// MaxPropertiesSize bounds the body of a properties write.
const MaxPropertiesSize = 1 << 20

// Handler serves /api/control/*.
type Handler struct {
	platform platform.Platform
	logger   *zap.Logger
}

// New creates a control handler over p.
func New(p platform.Platform, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{platform: p, logger: logger}
}

// Routes returns the control sub-router. Unknown operations, unsupported
// methods and the bare root all answer 400.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/properties", h.getProperties)
	r.Post("/properties", h.putProperties)
	r.Post("/stop", h.stop)
	r.Post("/reload", h.reload)
	r.Post("/world", h.world)
	rejectUnknown(r)
	return r
}

func rejectUnknown(r chi.Router) {
	badRequest := func(w http.ResponseWriter, r *http.Request) {
		respondStatus(w, "unknown", http.StatusBadRequest)
	}
	r.NotFound(badRequest)
	r.MethodNotAllowed(badRequest)
}

type response struct {
	Code       int                `json:"code"`
	Error      string             `json:"error,omitempty"`
	Properties *string            `json:"properties,omitempty"`
	Players    *[]platform.Player `json:"players,omitempty"`
}

func (h *Handler) getProperties(w http.ResponseWriter, r *http.Request) {
	text, err := h.platform.ReadConfigurationText()
	if err != nil {
		h.logger.Error("failed to read server properties", zap.Error(err))
		respondStatus(w, "properties.read", http.StatusInternalServerError)
		return
	}
	respond(w, "properties.read", response{Code: http.StatusOK, Properties: &text})
}

func (h *Handler) putProperties(w http.ResponseWriter, r *http.Request) {
	text, err := readProperties(w, r)
	if err != nil {
		respond(w, "properties.write", response{Code: http.StatusBadRequest, Error: err.Error()})
		return
	}

	if err := h.platform.WriteConfigurationText(text); err != nil {
		h.logger.Error("failed to write server properties", zap.Error(err))
		respond(w, "properties.write", response{Code: http.StatusInternalServerError, Error: err.Error()})
		return
	}
	h.logger.Info("server properties updated", zap.Int("bytes", len(text)))
	respondStatus(w, "properties.write", http.StatusOK)
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("stop requested", zap.String("remote", r.RemoteAddr))
	h.platform.Stop()
	respondStatus(w, "stop", http.StatusOK)
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reload requested", zap.String("remote", r.RemoteAddr))
	h.platform.Reload()
	respondStatus(w, "reload", http.StatusOK)
}

func (h *Handler) world(w http.ResponseWriter, r *http.Request) {
	name, ok := r.URL.Query()["save"]
	if !ok || len(name) == 0 {
		respondStatus(w, "world", http.StatusBadRequest)
		return
	}

	save, found := h.platform.FindSave(name[0])
	if !found {
		respondStatus(w, "world", http.StatusNotFound)
		return
	}

	if err := save.Activate(); err != nil {
		h.logger.Error("failed to activate save", zap.String("save", save.Name()), zap.Error(err))
		respond(w, "world", response{Code: http.StatusInternalServerError, Error: err.Error()})
		return
	}
	h.logger.Info("active save changed", zap.String("save", save.Name()))
	respondStatus(w, "world", http.StatusOK)
}

// readProperties accepts either a JSON string body or raw text.
func readProperties(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPropertiesSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", fmt.Errorf("properties exceed %d bytes", tooLarge.Limit)
		}
		return "", fmt.Errorf("read body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return string(body), nil
	}

	var text string
	if err := json.Unmarshal(body, &text); err != nil {
		return "", fmt.Errorf("body must be a JSON string: %w", err)
	}
	return text, nil
}

func respondStatus(w http.ResponseWriter, op string, code int) {
	respond(w, op, response{Code: code})
}

func respond(w http.ResponseWriter, op string, res response) {
	metrics.ControlRequests.WithLabelValues(op, strconv.Itoa(res.Code)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(res.Code)
	_ = json.NewEncoder(w).Encode(res)
}
