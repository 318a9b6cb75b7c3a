// Package cipher encrypts configuration secrets at rest.
//
// Tokens are self-contained: a random 16-byte salt is prepended to the
// AES-256-GCM sealed payload and the whole thing is base64url encoded, so
// a token can be decrypted with nothing but the passphrase.
package cipher

import (
	"crypto/aes"
	ciph "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os/user"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen    = 16
	iterations = 100_000
	keyLen     = 32
)

// Cipher derives a fresh key per token from a passphrase.
type Cipher struct {
	passphrase []byte
}

// New creates a Cipher from a passphrase. An empty passphrase falls back
// to the machine-bound default.
func New(passphrase string) *Cipher {
	if passphrase == "" {
		passphrase = DefaultPassphrase()
	}
	return &Cipher{passphrase: []byte(passphrase)}
}

// DefaultPassphrase is "<user>@<os>", binding encrypted config values to
// the machine and account that wrote them.
func DefaultPassphrase() string {
	name := "replaybot"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return name + "@" + runtime.GOOS
}

// Encrypt seals plain text into a portable token.
func (c *Cipher) Encrypt(plain string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plain), nil)

	token := make([]byte, 0, saltLen+len(nonce)+len(sealed))
	token = append(token, salt...)
	token = append(token, nonce...)
	token = append(token, sealed...)

	return base64.URLEncoding.EncodeToString(token), nil
}

// Decrypt reverses Encrypt. It fails if the token is malformed or was
// produced with a different passphrase.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if len(raw) < saltLen {
		return "", fmt.Errorf("token too short")
	}

	salt := raw[:saltLen]
	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	rest := raw[saltLen:]
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("token too short")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}

func (c *Cipher) aead(salt []byte) (ciph.AEAD, error) {
	key := pbkdf2.Key(c.passphrase, salt, iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := ciph.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
