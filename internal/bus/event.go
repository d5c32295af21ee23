package bus

import "time"

// Event kinds published by the session subsystem. Subscribers filter by
// namespace prefix, e.g. "broadcast." receives every broadcast event.
const (
	KindLoginCodeRequested = "login.code_requested"
	KindLoginAuthenticated = "login.authenticated"
	KindLoginFailed        = "login.failed"
	KindAccountUnlinked    = "account.unlinked"

	KindBroadcastStarted      = "broadcast.started"
	KindBroadcastTargetFailed = "broadcast.target_failed"
	KindBroadcastFinished     = "broadcast.finished"

	KindJoinStarted  = "join.started"
	KindJoinFinished = "join.finished"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
