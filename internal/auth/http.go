package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey struct{}

var (
	// ErrInvalidToken covers malformed, forged and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserNotFound means the token was valid but its subject no
	// longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// Service is the HTTP face of authentication: the login and me
// handlers plus the bearer middleware protecting everything else.
type Service struct {
	users  *Users
	tokens *Tokens
	log    *slog.Logger
}

func NewService(users *Users, tokens *Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, tokens: tokens, log: log}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userInfo struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	OrgID    string `json:"org_id"`
	OrgName  string `json:"org_name"`
}

func publicUser(u User) userInfo {
	return userInfo{Username: u.Username, Role: u.Role, OrgID: u.OrgID, OrgName: u.OrgName}
}

// Login exchanges credentials for a bearer token.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, ok := s.users.Authenticate(req.Username, req.Password)
	if !ok {
		s.log.Warn("login rejected", "username", req.Username)
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.log.Error("issuing token", "username", user.Username, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         publicUser(user),
	})
}

// Me returns the account behind the request's token.
func (s *Service) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	writeJSON(w, http.StatusOK, publicUser(user))
}

// Require rejects requests without a valid bearer token and stores the
// authenticated user in the request context.
func (s *Service) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeDetail(w, http.StatusUnauthorized, "Authorization header missing")
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			writeDetail(w, http.StatusUnauthorized, "Invalid token format")
			return
		}

		user, err := s.Authenticate(token)
		if err != nil {
			detail := "Invalid token"
			if errors.Is(err, ErrUserNotFound) {
				detail = "User not found"
			}
			writeDetail(w, http.StatusUnauthorized, detail)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate resolves a raw token to its account. The WebSocket
// handshake uses it directly since it has no Authorization header.
func (s *Service) Authenticate(token string) (User, error) {
	username, err := s.tokens.Subject(token)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	user, ok := s.users.Get(username)
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// UserFrom returns the user stored in the context by Require.
func UserFrom(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(ctxKey{}).(User)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
