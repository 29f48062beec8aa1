package client

// Wire types for the admin API. These mirror the service's JSON
// contract; the package deliberately does not expose the server's
// internal packages, so external importers can construct requests.

// ShardState is a shard's advisory busy flag.
type ShardState int32

const (
	StateNormal ShardState = iota
	StateBusy
	StateCancelled
)

func (s ShardState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateBusy:
		return "busy"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ShardInfo is one shard's registration record.
type ShardInfo struct {
	ID              int64      `json:"id"`
	ClassName       string     `json:"className"`
	TablePrefix     string     `json:"tablePrefix"`
	Hostname        string     `json:"hostname"`
	SourceType      string     `json:"sourceType,omitempty"`
	DestinationType string     `json:"destinationType,omitempty"`
	Busy            ShardState `json:"busy"`
}

// ChildInfo is a weighted edge in the shard tree.
type ChildInfo struct {
	ChildID int64 `json:"childId"`
	Weight  int   `json:"weight"`
}

// Forwarding binds a logical (table, base id) range to its owning shard.
type Forwarding struct {
	TableID int   `json:"tableId"`
	BaseID  int64 `json:"baseId"`
	ShardID int64 `json:"shardId"`
}
