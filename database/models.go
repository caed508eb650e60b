package database

import (
	"fmt"
	"time"
)

// Run is the stored outcome of one stress run.
type Run struct {
	ID       uint64        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	// parameters
	Permits int64  `json:"permits"`
	Workers int    `json:"workers"`
	Rounds  int    `json:"rounds"`
	Seed    uint64 `json:"seed"`

	// operation counts
	Acquired  int64 `json:"acquired"`
	TryHits   int64 `json:"try_hits"`
	TryMisses int64 `json:"try_misses"`
	Scoped    int64 `json:"scoped"`
	Multi     int64 `json:"multi"`

	MaxHolders     int64  `json:"max_holders"`
	FinalAvailable int64  `json:"final_available"`
	Err            string `json:"error,omitempty"`
}

func (r *Run) OK() bool {
	return r.Err == ""
}

func (r *Run) String() string {
	status := "ok"
	if !r.OK() {
		status = "FAILED: " + r.Err
	}
	return fmt.Sprintf("#%d %s permits=%d workers=%d rounds=%d seed=%d acquired=%d try=%d/%d scoped=%d multi=%d max_holders=%d available=%d took=%s %s",
		r.ID, r.Started.Format(time.RFC3339), r.Permits, r.Workers, r.Rounds, r.Seed,
		r.Acquired, r.TryHits, r.TryHits+r.TryMisses, r.Scoped, r.Multi,
		r.MaxHolders, r.FinalAvailable, r.Duration, status)
}
