package api

import "time"

// RunStatus is the outcome of an archived scenario run.
type RunStatus string

const (
	RunPassed RunStatus = "PASSED"
	RunFailed RunStatus = "FAILED"
)

// StepRecord is the archived form of a StepResult.
type StepRecord struct {
	Kind    string
	Title   string
	Phase   string
	Status  string
	Error   string
	Elapsed time.Duration
}

// RunRecord is the archived summary of one finished scenario run. It is
// written once, after the run, and read by reporters and the CLI; it is
// never used to resume a run.
type RunRecord struct {
	ID           string
	FeatureName  string
	ScenarioName string
	Tags         []string
	Status       RunStatus
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Steps        []StepRecord
	Cleanups     []StepRecord

	// FinalValue is the gob-encoded CurrentItem, nil when the value could
	// not be encoded.
	FinalValue []byte
}

// RunFilter selects archived runs. Zero values mean "no filter".
type RunFilter struct {
	FeatureName string
	Status      RunStatus
	// Limit caps the number of records, newest first. Zero means no cap.
	Limit int
}

// NewRunRecord summarizes a finished scenario. FinalValue is left for the
// store to fill in.
func NewRunRecord(sc *ScenarioContext) RunRecord {
	rec := RunRecord{
		ID:           sc.ID,
		FeatureName:  sc.FeatureName,
		ScenarioName: sc.ScenarioName,
		Tags:         sc.Tags(),
		Status:       RunPassed,
		StartedAt:    sc.StartedAt,
		FinishedAt:   sc.FinishedAt,
		Steps:        toStepRecords(sc.Steps()),
		Cleanups:     toStepRecords(sc.Cleanups()),
	}
	if sc.Failed() {
		rec.Status = RunFailed
	}
	if err := sc.Err(); err != nil {
		rec.Error = err.Error()
	}
	return rec
}

func toStepRecords(results []StepResult) []StepRecord {
	out := make([]StepRecord, 0, len(results))
	for _, r := range results {
		sr := StepRecord{
			Kind:    r.Kind,
			Title:   r.Title,
			Phase:   r.Phase.String(),
			Status:  r.Status(),
			Elapsed: r.Elapsed,
		}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		out = append(out, sr)
	}
	return out
}
