package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kardai/apiserver/internal/services"
)

const tokenTypeBearer = "bearer"

// AuthHandler provides registration and token endpoints.
type AuthHandler struct {
	identity *services.IdentityService
	logger   *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(identity *services.IdentityService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identity: identity, logger: logger}
}

// AuthRouter registers auth routes on the given router. limiter may be nil.
func AuthRouter(r chi.Router, identity *services.IdentityService, logger *slog.Logger, limiter func(http.Handler) http.Handler) {
	handler := NewAuthHandler(identity, logger)

	if limiter != nil {
		r = r.With(limiter)
	}
	r.Post("/register", handler.Register)
	r.Post("/token", handler.Token)
}

// RequireAuth resolves the bearer token into a user and stores it in the
// request context.
func RequireAuth(identity *services.IdentityService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "Could not validate credentials")
				return
			}

			user, err := identity.ResolveFromToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, services.ErrUnauthenticated) {
					writeUnauthorized(w, "Could not validate credentials")
					return
				}
				logger.ErrorContext(r.Context(), "resolve token", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// Register creates a new user account. Fields are read from the query string
// or a form body.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.identity.Register(r.Context(), r.Form.Get("username"), r.Form.Get("email"), r.Form.Get("password"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "password must be at most 72 bytes")
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "username, email and password are required")
		case errors.Is(err, services.ErrDuplicateIdentity):
			writeError(w, http.StatusBadRequest, "Username or email already registered")
		default:
			h.logger.ErrorContext(r.Context(), "register user", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Message:  "User created successfully",
		Username: user.Username,
	})
}

// Token exchanges form credentials for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	_, token, err := h.identity.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeUnauthorized(w, "Incorrect username or password")
			return
		}
		h.logger.ErrorContext(r.Context(), "authenticate user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: tokenTypeBearer})
}

type RegisterResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
