package app

import (
	"maptrack/internal/pipeline"
	"maptrack/pkg/api"
)

// ToAPIStep converts a step report to the v1 wire schema.
func ToAPIStep(r pipeline.StepReport) api.StepV1 {
	return api.StepV1{
		Step:       r.Step,
		Target:     r.Target,
		Status:     string(r.Status),
		Outputs:    r.Outputs,
		Command:    r.Command,
		DurationMS: r.Duration.Milliseconds(),
	}
}
