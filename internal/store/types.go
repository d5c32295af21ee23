package store

// Target statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
	StatusJoined = "joined"
)

// BroadcastJob is one recorded fan-out run.
type BroadcastJob struct {
	ID          string
	OwnerID     int64
	Body        string
	TargetCount int
	SentCount   int
	FailedCount int
	CreatedAt   int64
	FinishedAt  int64
}

// BroadcastTarget is one per-target outcome inside a broadcast job.
type BroadcastTarget struct {
	BroadcastID string
	Position    int
	ChatID      int64
	Status      string
	Error       string
}

// JoinBatch is one recorded join-and-archive run.
type JoinBatch struct {
	ID          string
	OwnerID     int64
	RefCount    int
	JoinedCount int
	FailedCount int
	CreatedAt   int64
	FinishedAt  int64
}

// JoinTarget is one per-reference outcome inside a join batch.
type JoinTarget struct {
	BatchID  string
	Position int
	Ref      string
	ChatID   int64
	Status   string
	Archived bool
	Error    string
}
