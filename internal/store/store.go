package store

import (
	"context"
	"time"

	"github.com/rendis/nexus/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Insights
	SaveInsight(ctx context.Context, insight *schema.Insight) error
	ListInsights(ctx context.Context, filter InsightFilter) ([]*schema.Insight, error)

	// Agent configs
	SaveAgentConfig(ctx context.Context, cfg *schema.StoredAgentConfig) error
	GetAgentConfig(ctx context.Context, id string) (*schema.StoredAgentConfig, error)
	ListAgentConfigs(ctx context.Context, filter AgentConfigFilter) ([]*schema.StoredAgentConfig, error)

	// Secrets
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
