package domain

// ---------------------------------------------------------------------------
// Shared value objects
// ---------------------------------------------------------------------------

// ConnectionStatus is the lifecycle state of one platform connection.
//
//	absent ──acquire──▶ connecting ──open ok──▶ ready
//	                        │
//	                        └──open failed──▶ failed (retry allowed)
type ConnectionStatus string

const (
	StatusAbsent     ConnectionStatus = "absent"
	StatusConnecting ConnectionStatus = "connecting"
	StatusReady      ConnectionStatus = "ready"
	StatusFailed     ConnectionStatus = "failed"
)

func (cs ConnectionStatus) String() string { return string(cs) }
