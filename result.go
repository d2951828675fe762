package tardy

import "time"

// ResultKind discriminates the variant held by a Result.
type ResultKind uint8

const (
	// ResultNone carries no payload (timer fired, close completed).
	ResultNone ResultKind = iota
	// ResultWake marks a synthetic completion delivered by AsyncIO.Wake.
	ResultWake
	// ResultValue carries a signed byte/operation count (read, write, recv, send, connect).
	ResultValue
	// ResultFD carries an opened file descriptor, or -1 on failure (open).
	ResultFD
	// ResultSocket carries an accepted socket, or -1 on failure (accept).
	ResultSocket
	// ResultStat carries file metadata (stat).
	ResultStat
)

// Stat mirrors the subset of file metadata a stat operation reports.
// Modified and Changed are populated from mtim/ctim respectively, not
// from atim.
type Stat struct {
	Size     uint64
	Mode     uint32
	Accessed time.Time
	Modified time.Time
	Changed  time.Time
}

// Timespec is a relative duration used only for timers.
type Timespec struct {
	Seconds uint64
	Nanos   uint64
}

// Duration converts the Timespec to a time.Duration.
func (t Timespec) Duration() time.Duration {
	return time.Duration(t.Seconds)*time.Second + time.Duration(t.Nanos)*time.Nanosecond
}

// Result is the tagged outcome of a queued AsyncIO operation. Exactly one
// of the fields below is meaningful, as determined by Kind.
type Result struct {
	Kind   ResultKind
	Value  int64
	FD     int32
	Socket int32
	Stat   Stat
}

// Completion is a (task, result) pair returned in a batch by AsyncIO.Reap.
type Completion struct {
	Task   TaskIndex
	Result Result
}
