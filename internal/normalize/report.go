package normalize

import "time"

type Action string

const (
	ActionMigrated Action = "migrated"
	ActionSkipped  Action = "skipped"
	ActionAnomaly  Action = "anomaly"
	ActionFailed   Action = "failed"
	ActionPlanned  Action = "planned"
)

type Outcome struct {
	DocumentID string         `json:"documentId"`
	Action     Action         `json:"action"`
	Set        map[string]any `json:"set,omitempty"`
	Unset      []string       `json:"unset,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type Verification struct {
	DocumentsWithNewFormat int64    `json:"documentsWithNewFormat"`
	DocumentsWithOldFormat int64    `json:"documentsWithOldFormat"`
	RemainingOffenders     []string `json:"remainingOffenders"`
}

type Report struct {
	Total      int64 `json:"total"`
	Candidates int   `json:"candidates"`
	Migrated   int   `json:"migrated"`
	// Skipped counts documents that needed no write: everything outside the
	// candidate scan plus candidates whose plan came out empty.
	Skipped      int          `json:"skipped"`
	Anomalies    int          `json:"anomalies"`
	Failed       int          `json:"failed"`
	Planned      int          `json:"planned"`
	DryRun       bool         `json:"dryRun"`
	Outcomes     []Outcome    `json:"outcomes"`
	Verification Verification `json:"verification"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   time.Time    `json:"finishedAt"`
}

func (r *Report) record(o Outcome) {
	switch o.Action {
	case ActionMigrated:
		r.Migrated++
	case ActionSkipped:
		r.Skipped++
	case ActionAnomaly:
		r.Anomalies++
	case ActionFailed:
		r.Failed++
	case ActionPlanned:
		r.Planned++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Writes is the number of update calls the pass issued.
func (r *Report) Writes() int {
	return r.Migrated + r.Anomalies + r.Failed
}

// Clean reports whether the pass left nothing for an operator to act on.
func (r *Report) Clean() bool {
	return r.Failed == 0 && len(r.Verification.RemainingOffenders) == 0
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
