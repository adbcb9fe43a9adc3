package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rendis/nexus/pkg/schema"
)

const (
	saltKey           = "__vault_salt"
	saltSize          = 16
	defaultIterations = 100_000
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// VaultConfig configures key derivation. MasterKey takes priority over
// Passphrase; a passphrase without Salt uses the salt persisted in the store.
type VaultConfig struct {
	MasterKey  []byte
	Passphrase string
	Salt       []byte
	Iterations int
}

// AESVault encrypts secrets with AES-256-GCM before persisting them. The key
// name is bound as associated data, so a ciphertext copied under another key
// fails to open.
type AESVault struct {
	store SecretStore
	aead  cipher.AEAD
}

// NewAESVault creates a vault over s. It may write the salt to s the first
// time a passphrase is used.
func NewAESVault(ctx context.Context, s SecretStore, cfg VaultConfig) (*AESVault, error) {
	if cfg.Passphrase != "" && len(cfg.MasterKey) == 0 && len(cfg.Salt) == 0 {
		salt, err := loadOrCreateSalt(ctx, s)
		if err != nil {
			return nil, err
		}
		cfg.Salt = salt
	}
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESVault{store: s, aead: aead}, nil
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeVault, "vault passphrase is not configured")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeVault, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

func loadOrCreateSalt(ctx context.Context, s SecretStore) ([]byte, error) {
	salt, err := s.GetSecret(ctx, saltKey)
	if err == nil && len(salt) == saltSize {
		return salt, nil
	}
	if err != nil && !schema.HasCode(err, schema.ErrCodeNotFound) {
		return nil, schema.NewError(schema.ErrCodeVault, "load vault salt").WithCause(err)
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := s.StoreSecret(ctx, saltKey, salt); err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "persist vault salt").WithCause(err)
	}
	return salt, nil
}

// ValidateKey checks a secret name: lowercase, starting with a letter,
// at most 64 characters of [a-z0-9_.-].
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid secret key %q", key).
			WithDetails(map[string]any{"pattern": keyPattern.String()})
	}
	return nil
}

func (v *AESVault) encrypt(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

func (v *AESVault) decrypt(key string, ciphertext []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, schema.NewError(schema.ErrCodeVault, "ciphertext too short")
	}
	plaintext, err := v.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], []byte(key))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "decrypt %q failed", key).WithCause(err)
	}
	return plaintext, nil
}

func (v *AESVault) Store(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	encrypted, err := v.encrypt(key, value)
	if err != nil {
		return err
	}
	return v.store.StoreSecret(ctx, key, encrypted)
}

func (v *AESVault) Resolve(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	encrypted, err := v.store.GetSecret(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.decrypt(key, encrypted)
}

func (v *AESVault) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return v.store.DeleteSecret(ctx, key)
}

// List returns the stored key names, sorted, without internal entries.
func (v *AESVault) List(ctx context.Context) ([]string, error) {
	keys, err := v.store.ListSecrets(ctx)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if !strings.HasPrefix(k, "__") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ResolveString resolves key and reports whether a non-empty value exists.
// A missing key is not an error.
func ResolveString(ctx context.Context, v Vault, key string) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	val, err := v.Resolve(ctx, key)
	if err != nil {
		if schema.HasCode(err, schema.ErrCodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	s := strings.TrimSpace(string(val))
	return s, s != "", nil
}
