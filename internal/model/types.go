package model

// ShardState records whether a shard is undergoing a blocking
// administrative operation. The flag is advisory: the directory never
// enforces mutual exclusion on it, task authors check it and back off.
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

// ShardInfo is the identity and configuration of one shard.
// IDs are assigned by the caller at creation, never generated here.
// (TablePrefix, Hostname) is the unique physical-location key.
type ShardInfo struct {
	ID              int64      `json:"id"`
	ClassName       string     `json:"className"`
	TablePrefix     string     `json:"tablePrefix"`
	Hostname        string     `json:"hostname"`
	SourceType      string     `json:"sourceType,omitempty"`
	DestinationType string     `json:"destinationType,omitempty"`
	Busy            ShardState `json:"busy"`
}

// ChildInfo is a weighted edge in the shard tree. Higher weight means
// higher routing priority; a child id appears under at most one parent.
type ChildInfo struct {
	ChildID int64 `json:"childId"`
	Weight  int   `json:"weight"`
}

// Forwarding binds a logical (table, base id) range to the shard that
// currently owns it. A shard backs at most one forwarding at a time.
type Forwarding struct {
	TableID int   `json:"tableId"`
	BaseID  int64 `json:"baseId"`
	ShardID int64 `json:"shardId"`
}
