package writers

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"maptrack/internal/jsonutil"
	"maptrack/pkg/api"
)

// StartReportWriter spins up a writer goroutine for pipeline steps.
// "text" streams one line per step; "json" buffers and writes meta with
// the collected steps once in is closed.
func StartReportWriter(out io.Writer, format string, meta api.RunReportV1, bufSize int) (chan<- api.StepV1, <-chan error) {
	if bufSize <= 0 {
		bufSize = 64
	}
	in := make(chan api.StepV1, bufSize)
	errCh := make(chan error, 1)

	go func() {
		var err error
		switch format {
		case "json":
			meta.Steps = []api.StepV1{}
			for s := range in {
				meta.Steps = append(meta.Steps, s)
			}
			err = jsonutil.EncodePretty(out, meta)

		case "text":
			bw := bufio.NewWriter(out)
			for s := range in {
				if err != nil {
					continue
				}
				err = writeStepText(bw, s)
				if err == nil {
					// Steps can be minutes apart; show each one as it lands.
					err = bw.Flush()
				}
			}
			if err == nil {
				err = bw.Flush()
			}

		default:
			for range in {
			}
			err = fmt.Errorf("unsupported report format %q", format)
		}
		if IsBrokenPipe(err) {
			err = nil
		}
		errCh <- err
	}()

	return in, errCh
}

func writeStepText(w io.Writer, s api.StepV1) error {
	out := "-"
	if len(s.Outputs) > 0 {
		out = s.Outputs[0]
		if len(s.Outputs) > 1 {
			out += fmt.Sprintf(" (+%d)", len(s.Outputs)-1)
		}
	}
	dur := "-"
	if s.DurationMS > 0 {
		dur = (time.Duration(s.DurationMS) * time.Millisecond).String()
	}
	_, err := fmt.Fprintf(w, "%-8s %-8s %-24s %8s  %s\n", s.Status, s.Step, s.Target, dur, out)
	return err
}
