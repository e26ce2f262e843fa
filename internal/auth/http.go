package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/metrics"
)

// CookieName is the cookie carrying the control API token.
const CookieName = "token"

const maxLoginBody = 4 << 10

// Service bundles the access key check and token manager for HTTP use.
type Service struct {
	accessKey string
	tokens    *TokenManager
	logger    *zap.Logger
}

// NewService creates a Service for the given plain access key.
func NewService(accessKey string, tokens *TokenManager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{accessKey: accessKey, tokens: tokens, logger: logger}
}

type loginRequest struct {
	// AccessKey is Digest(accessKey), computed client side.
	AccessKey string `json:"accessKey"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// HandleLogin exchanges the single-digested access key for a token.
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if !Equal(req.AccessKey, Digest(s.accessKey)) {
		metrics.AuthFailures.WithLabelValues("http").Inc()
		s.logger.Info("rejected control api login", zap.String("remote", r.RemoteAddr))
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	token, err := s.tokens.Issue()
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.tokens.TTL().Seconds()),
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(loginResponse{Token: token})
}

// Middleware rejects requests without a valid token cookie or bearer header.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.tokens.Validate(requestToken(r)); err != nil {
			metrics.AuthFailures.WithLabelValues("http").Inc()
			s.logger.Debug("unauthorized control request", zap.String("path", r.URL.Path), zap.Error(err))
			writeStatus(w, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func writeStatus(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]int{"code": code})
}
