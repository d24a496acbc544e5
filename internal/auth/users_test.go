package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadUsers_Bootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "users.json")

	users, err := LoadUsers(path, nil)
	require.NoError(t, err)

	admin, ok := users.Get("admin")
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, admin.Role)
	assert.Equal(t, "org_campus", admin.OrgID)
	assert.Equal(t, "CIT Campus", admin.OrgName)
	assert.NotEmpty(t, admin.PasswordHash)

	_, ok = users.Authenticate("admin", "admin123")
	assert.True(t, ok)
	_, ok = users.Authenticate("admin", "wrong")
	assert.False(t, ok)

	// The bootstrap file must survive a reload.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "password_hash")

	reloaded, err := LoadUsers(path, nil)
	require.NoError(t, err)
	_, ok = reloaded.Authenticate("admin", "admin123")
	assert.True(t, ok)
}

func TestLoadUsers_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(
		`[{"username":"ops","role":"viewer","org_id":"org_campus","org_name":"CIT Campus","password_hash":"`+
			string(hash)+`"}]`), 0o600))

	users, err := LoadUsers(path, nil)
	require.NoError(t, err)

	user, ok := users.Authenticate("ops", "s3cret")
	require.True(t, ok)
	assert.Equal(t, "viewer", user.Role)

	// Loading an existing file must not add the bootstrap admin.
	_, ok = users.Get("admin")
	assert.False(t, ok)
}

func TestLoadUsers_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadUsers(path, nil)
	assert.Error(t, err)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	users, err := LoadUsers(filepath.Join(t.TempDir(), "users.json"), nil)
	require.NoError(t, err)

	_, ok := users.Authenticate("ghost", "admin123")
	assert.False(t, ok)
}
