package diffcli

import (
	"strings"
	"testing"
)

func TestParsePositionalsAndFlags(t *testing.T) {
	o, err := ParseArgs(NewFlagSet("maptrack-diff"), []string{"-v", "bw", "--merge-gap", "5", "out", "--gtf", "g.gtf"})
	if err != nil {
		t.Fatal(err)
	}
	if o.TrackDir != "bw" || o.OutputDir != "out" || o.MergeGap != 5 || o.GTF != "g.gtf" || !o.Verbose {
		t.Fatalf("parsed %+v", o)
	}
	if o.Epsilon != 1e-6 || o.Bins != 100 || o.MinRegion != 1 || o.Format != "text" {
		t.Fatalf("defaults %+v", o)
	}
}

func TestParseErrors(t *testing.T) {
	for _, args := range [][]string{
		{"only-one"},
		{"a", "b", "c"},
		{"--format", "xml", "a", "b"},
		{"--bins", "0", "a", "b"},
		{"--min-region", "0", "a", "b"},
		{"--epsilon", "-1", "a", "b"},
	} {
		if _, err := ParseArgs(NewFlagSet("maptrack-diff"), args); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestUsageExplainsPairOrder(t *testing.T) {
	fs := NewFlagSet("maptrack-diff")
	_, _ = ParseArgs(fs, []string{"-h"})
	var b strings.Builder
	fs.SetOutput(&b)
	fs.Usage()
	for _, want := range []string{"sort numerically", "<a>_vs_<b>", "track b minus track a"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("usage lacks %q:\n%s", want, b.String())
		}
	}
}
