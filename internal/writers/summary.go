package writers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"maptrack/internal/jsonlutil"
	"maptrack/internal/jsonutil"
	"maptrack/pkg/api"
)

func init() {
	RegisterSummary("text", writeSummaryText)
	RegisterSummary("json", func(w io.Writer, s *api.DiffSummaryV1) error { return jsonutil.EncodePretty(w, s) })
	RegisterSummary("jsonl", writeSummaryJSONL)
}

func fmtOpt(v *float64) string {
	if v == nil {
		return "NA"
	}
	return fmt.Sprintf("%.4f", *v)
}

func writeSummaryText(w io.Writer, s *api.DiffSummaryV1) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# tracks (%d chromosomes)\n", s.Chroms)
	fmt.Fprintln(bw, "key\tbases\tuncovered\tmean\tmin\tmax\tunique_fraction\tpath")
	for _, t := range s.Tracks {
		fmt.Fprintf(bw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			t.Key, t.Bases, t.Uncovered, fmtOpt(t.Mean), fmtOpt(t.Min), fmtOpt(t.Max), fmtOpt(t.UniqueFraction), t.Path)
	}
	fmt.Fprintf(bw, "\n# comparisons (|diff| > %g counts as a change)\n", s.Epsilon)
	fmt.Fprintln(bw, "comparison\tcompared\tmean_diff\tincreased\tdecreased\tunchanged\tregions\tskipped_chroms")
	for _, c := range s.Comparisons {
		skipped := "-"
		if len(c.Skipped) > 0 {
			skipped = strings.Join(c.Skipped, ",")
		}
		fmt.Fprintf(bw, "%s\t%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
			c.Name, c.Compared, fmtOpt(c.MeanDiff), c.Increased, c.Decreased, c.Unchanged, c.Regions, skipped)
	}
	return bw.Flush()
}

func writeSummaryJSONL(w io.Writer, s *api.DiffSummaryV1) error {
	in, done := jsonlutil.Start[api.DiffRecordV1](w, 0,
		func(enc *json.Encoder, r api.DiffRecordV1) error { return enc.Encode(r) },
		IsBrokenPipe,
	)
	for i := range s.Tracks {
		in <- api.DiffRecordV1{Kind: "track", Track: &s.Tracks[i]}
	}
	for i := range s.Comparisons {
		in <- api.DiffRecordV1{Kind: "comparison", Comparison: &s.Comparisons[i]}
	}
	close(in)
	return <-done
}
