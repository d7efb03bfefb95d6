package admin

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
)

// makeHash генерирует хеш в том же формате, что scripts/generate_hash.go.
func makeHash(t *testing.T, password string) string {
	t.Helper()

	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	var (
		memory      uint32 = 65536
		iterations  uint32 = 3
		parallelism uint8  = 2
	)
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, 32)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func TestVerifyArgon2id(t *testing.T) {
	encoded := makeHash(t, "сложный-пароль")

	assert.True(t, verifyArgon2id("сложный-пароль", encoded))
	assert.False(t, verifyArgon2id("неверный", encoded))
	assert.False(t, verifyArgon2id("", encoded))
}

func TestVerifyArgon2id_MalformedHash(t *testing.T) {
	assert.False(t, verifyArgon2id("пароль", ""))
	assert.False(t, verifyArgon2id("пароль", "$argon2id$v=19$битый"))
	assert.False(t, verifyArgon2id("пароль", "$argon2id$v=19$m=65536,t=3,p=2$не-base64!$тоже"))
}

func TestGenerateSecureToken(t *testing.T) {
	a := generateSecureToken()
	b := generateSecureToken()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
