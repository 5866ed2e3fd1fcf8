package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"snaptale/internal/app"
	"snaptale/internal/usertoken"
	"snaptale/internal/util"
	"snaptale/pkg/auth"
	"snaptale/pkg/domain"
)

// Limiter is what the server needs from a rate limiter.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App              *app.App
	Tokens           *auth.TokenIssuer
	IdentityVerifier *usertoken.Verifier
	InternalToken    string
	StripeWebhook    *StripeWebhook
	StoryLimiter     Limiter
	TransformLimiter Limiter
	TrustedProxies   *util.TrustedProxies
}

// Server exposes the HTTP API.
type Server struct {
	app              *app.App
	tokens           *auth.TokenIssuer
	identityVerifier *usertoken.Verifier
	internalToken    string
	stripeWebhook    *StripeWebhook
	storyLimiter     Limiter
	transformLimiter Limiter
	trustedProxies   *util.TrustedProxies
	mux              *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("server: token issuer is required")
	}
	if strings.TrimSpace(cfg.InternalToken) == "" {
		return nil, errors.New("server: internal token is required")
	}
	s := &Server{
		app:              cfg.App,
		tokens:           cfg.Tokens,
		identityVerifier: cfg.IdentityVerifier,
		internalToken:    cfg.InternalToken,
		stripeWebhook:    cfg.StripeWebhook,
		storyLimiter:     cfg.StoryLimiter,
		transformLimiter: cfg.TransformLimiter,
		trustedProxies:   cfg.TrustedProxies,
		mux:              http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/me", s.withUser(s.handleMe))

	s.mux.Handle("/api/books", s.withUser(s.handleBooks))
	s.mux.Handle("/api/books/", s.withUser(s.handleBookByID))
	s.mux.Handle("/api/pages/", s.withUser(s.handlePageByID))
	s.mux.Handle("/api/images/", s.withUser(s.handleImageByID))
	s.mux.Handle("/api/orders", s.withUser(s.handleOrders))
	s.mux.Handle("/api/orders/process", s.withUser(s.handleProcessOrder))
	s.mux.Handle("/api/orders/", s.withUser(s.handleOrderByID))
	s.mux.Handle("/api/story-suggest", s.withUser(s.handleStorySuggest))

	s.mux.Handle("/internal/orders/process", s.withInternal(s.handleInternalProcessOrder))

	if s.stripeWebhook != nil {
		s.mux.HandleFunc("/webhooks/stripe", s.stripeWebhook.Handle)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser authenticates the request and passes the resolved user to
// the handler. Local HS256 tokens are tried first, then external
// identity-provider tokens; the latter create the user on first call.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if userID, err := s.tokens.VerifySubject(token); err == nil {
			user, found, err := s.app.GetUser(userID)
			if err != nil || !found {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next(w, r, user)
			return
		}

		if s.identityVerifier != nil {
			identity, err := s.identityVerifier.VerifyIdentity(token)
			if err == nil {
				user, err := s.app.EnsureExternalUser(identity)
				if err != nil {
					slog.Error("ensure external user", "error", err)
					writeError(w, http.StatusInternalServerError, "internal error")
					return
				}
				next(w, r, user)
				return
			}
		}

		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// withInternal guards service-to-service endpoints with a shared token.
func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Internal-Token") != s.internalToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) allow(limiter Limiter, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(util.ClientIP(r, s.trustedProxies))
}

// writeAppError maps application sentinel errors to HTTP responses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound), errors.Is(err, app.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "invalid email or password":
		return "AUTH_BAD_CREDENTIALS"
	case message == "email already registered":
		return "AUTH_EMAIL_TAKEN"
	case message == "forbidden":
		return "ACCESS_FORBIDDEN"
	case message == "not found":
		return "RESOURCE_NOT_FOUND"
	case message == "rate limit exceeded":
		return "RATE_LIMITED"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "invalid webhook signature":
		return "WEBHOOK_INVALID_SIGNATURE"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_VALIDATION_FAILED"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "ACCESS_FORBIDDEN"
	case http.StatusNotFound:
		return "RESOURCE_NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
