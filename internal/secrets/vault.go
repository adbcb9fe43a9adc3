// Package secrets keeps LLM provider credentials encrypted in the store.
package secrets

import "context"

// Well-known keys read by the insight providers.
const (
	KeyGeminiAPIKey = "gemini_api_key"
	KeyOpenAIAPIKey = "openai_api_key"
)

// Vault encrypts values at rest (AES-256-GCM) and decrypts them in memory only.
type Vault interface {
	Resolve(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// SecretStore is the persistence the vault needs. Satisfied by store.Store.
type SecretStore interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)
}
