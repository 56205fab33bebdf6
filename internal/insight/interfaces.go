package insight

import (
	"context"
	"encoding/json"
	"time"
)

// RemoteClient performs one blocking analysis call against the provider. It
// is the only network-performing dependency of the core; failures must be
// returned as *ProviderError so classification never depends on error text.
type RemoteClient interface {
	Run(ctx context.Context, target string, strategy Strategy, categories []Category) (json.RawMessage, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
