package health

import "context"

// HealthPinger is implemented by probeable dependencies such as the
// shard store. HealthPing returns nil while the dependency can serve
// directory reads.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
