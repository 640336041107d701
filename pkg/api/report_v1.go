// pkg/api/report_v1.go
package api

// StepV1 is the stable JSON schema for one pipeline step.
// Keep fields, names, and types stable. Add new fields only with ",omitempty".
type StepV1 struct {
	Step       string   `json:"step"`
	Target     string   `json:"target"`
	Status     string   `json:"status"` // "ran" | "skipped" | "planned"
	Outputs    []string `json:"outputs,omitempty"`
	Command    string   `json:"command,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
}

// RunReportV1 wraps every step of one pipeline run.
type RunReportV1 struct {
	RunID   string   `json:"run_id"`
	Version string   `json:"version"`
	Out     string   `json:"out"`
	Kmers   []int    `json:"kmers"`
	Errors  int      `json:"errors"`
	DryRun  bool     `json:"dry_run,omitempty"`
	Steps   []StepV1 `json:"steps"`
}
