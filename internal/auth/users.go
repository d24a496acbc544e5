// Package auth holds the operator accounts and the bearer-token
// surface in front of the API.
package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Bootstrap account written on first start when no users file exists.
const (
	DefaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
	DefaultOrgID         = "org_campus"
	DefaultOrgName       = "CIT Campus"

	RoleAdmin = "admin"
)

// User is one operator account as stored in the users file.
type User struct {
	Username     string `json:"username"`
	Role         string `json:"role"`
	OrgID        string `json:"org_id"`
	OrgName      string `json:"org_name"`
	PasswordHash string `json:"password_hash"`
}

// Users is the in-memory account registry.
type Users struct {
	mu     sync.RWMutex
	byName map[string]User
}

// LoadUsers reads the users file, creating it with the bootstrap admin
// account when it does not exist yet.
func LoadUsers(path string, log *slog.Logger) (*Users, error) {
	if log == nil {
		log = slog.Default()
	}

	u := &Users{byName: make(map[string]User)}

	raw, err := os.ReadFile(path)
	if err == nil {
		var users []User
		if err := json.Unmarshal(raw, &users); err != nil {
			return nil, fmt.Errorf("parsing users file %s: %w", path, err)
		}
		for _, user := range users {
			u.byName[user.Username] = user
		}
		log.Info("users loaded", "path", path, "count", len(users))
		return u, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading users file %s: %w", path, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing bootstrap password: %w", err)
	}

	admin := User{
		Username:     DefaultAdminUsername,
		Role:         RoleAdmin,
		OrgID:        DefaultOrgID,
		OrgName:      DefaultOrgName,
		PasswordHash: string(hash),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating users dir: %w", err)
	}
	out, err := json.MarshalIndent([]User{admin}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding users file: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return nil, fmt.Errorf("writing users file %s: %w", path, err)
	}

	u.byName[admin.Username] = admin
	log.Info("users file bootstrapped", "path", path, "username", admin.Username)
	return u, nil
}

// Get returns the account for username.
func (u *Users) Get(username string) (User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byName[username]
	return user, ok
}

// Authenticate verifies the password against the stored hash.
func (u *Users) Authenticate(username, password string) (User, bool) {
	user, ok := u.Get(username)
	if !ok {
		return User{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, false
	}
	return user, true
}
