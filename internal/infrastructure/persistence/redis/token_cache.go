// Package redis implements the Redis-backed token cache. The last successful
// session token is persisted across restarts so the bot can usually soft-login
// instead of walking the full SSO exchange on every boot.
package redis

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/pbkdf2"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewClient creates a go-redis client from the configuration.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheConnection is returned when the Redis round trip fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheCipher is returned when at-rest encryption or decryption fails.
	// A decryption failure usually means the secret changed; the cache entry
	// is then worthless and treated as a miss.
	ErrCacheCipher = errors.New("cache: cipher failed")
)

// Key prefixes for namespacing Redis keys.
const (
	// PrefixSession is the prefix for session-related keys.
	PrefixSession = "bykc:session:"
)

// tokenTTL bounds how long a cached token is considered worth probing. The
// service expires sessions on its own schedule; anything older than a day is
// certainly dead.
const tokenTTL = 24 * time.Hour

// ══════════════════════════════════════════════════════════════════════════════
// TOKEN CACHE
// ══════════════════════════════════════════════════════════════════════════════

// TokenCache stores the session token encrypted at rest (AES-256-GCM, key
// derived from an operator-supplied secret). A shared Redis instance never
// sees the token in the clear.
type TokenCache struct {
	client *redis.Client
	key    []byte
}

// tokenCacheSalt is the fixed derivation salt. The secret itself is the
// high-entropy input; the salt only separates this derivation from other uses
// of the same secret.
var tokenCacheSalt = []byte("bykc-assistant/token-cache")

// NewTokenCache creates a token cache. The secret seeds the at-rest
// encryption key and must stay stable across restarts, or cached tokens
// become unreadable (costing one extra full login).
func NewTokenCache(client *redis.Client, secret string) *TokenCache {
	return &TokenCache{
		client: client,
		key:    pbkdf2.Key([]byte(secret), tokenCacheSalt, 100_000, 32, sha256.New),
	}
}

// GetToken returns the cached token, or "" when none is stored or the stored
// value cannot be decrypted.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	sealed, err := c.client.Get(ctx, c.tokenKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	token, err := c.decrypt(sealed)
	if err != nil {
		// An unreadable entry is a miss, not a failure: the caller falls back
		// to a full login and overwrites it.
		return "", nil
	}
	return token, nil
}

// SetToken stores the token encrypted at rest.
func (c *TokenCache) SetToken(ctx context.Context, token string) error {
	sealed, err := c.encrypt(token)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, c.tokenKey(), sealed, tokenTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return nil
}

func (c *TokenCache) tokenKey() string {
	return PrefixSession + "token"
}

// ─────────────────────────────────────────────────────────────────────────────
// At-rest cipher
// ─────────────────────────────────────────────────────────────────────────────

func (c *TokenCache) encrypt(plaintext string) (string, error) {
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheCipher, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *TokenCache) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheCipher, err)
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: sealed value too short", ErrCacheCipher)
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheCipher, err)
	}
	return string(plain), nil
}

func (c *TokenCache) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCipher, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCipher, err)
	}
	return gcm, nil
}
