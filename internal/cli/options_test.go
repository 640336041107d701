// internal/cli/options_test.go
package cli

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"maptrack/internal/clibase"
)

func mustParse(t *testing.T, args ...string) Options {
	t.Helper()
	opts, err := ParseArgs(NewFlagSet("maptrack"), args)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	return opts
}

func TestDefaults(t *testing.T) {
	o := mustParse(t, "hg38.fa")
	if o.Out != "mappability" || o.Errors != 2 || o.Jobs != 1 || o.Report != "text" {
		t.Fatalf("defaults %+v", o)
	}
	if !reflect.DeepEqual([]int(o.Kmers), []int{24, 36, 50, 100}) {
		t.Fatalf("kmers %v", o.Kmers)
	}
	if o.Genmap != "genmap" || o.Samtools != "samtools" || o.WigToBigWig != "wigToBigWig" {
		t.Fatalf("tools %+v", o)
	}
}

func TestFlagsAfterPositionals(t *testing.T) {
	o := mustParse(t, "a.fa", "-k", "36,100", "b.fa", "--errors=1", "-n", "--out", "o")
	if !reflect.DeepEqual(o.Inputs, []string{"a.fa", "b.fa"}) {
		t.Fatalf("inputs %v", o.Inputs)
	}
	if !reflect.DeepEqual([]int(o.Kmers), []int{36, 100}) || o.Errors != 1 || !o.DryRun || o.Out != "o" {
		t.Fatalf("parsed %+v", o)
	}
}

func TestConfigFileAndOverride(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(p, []byte(`{"kmers": [50], "errors": 0, "converter": "native"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	o := mustParse(t, "--config", p, "-e", "3", "g.fa")
	if !reflect.DeepEqual([]int(o.Kmers), []int{50}) || o.Errors != 3 || o.Converter != "native" {
		t.Fatalf("config merge %+v", o)
	}
}

func TestErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"-k", "24,24", "g.fa"},
		{"-k", "0", "g.fa"},
		{"-e", "-1", "g.fa"},
		{"-j", "0", "g.fa"},
		{"--converter", "magic", "g.fa"},
		{"--chrom-sizes-source", "ucsc", "g.fa"},
		{"--report", "yaml", "g.fa"},
		{"--log-level", "loud", "g.fa"},
		{"nomatch*.fa"},
	}
	for _, c := range cases {
		if _, err := ParseArgs(NewFlagSet("maptrack"), c); err == nil {
			t.Errorf("%v: expected error", c)
		}
	}
}

func TestVersionAndExamples(t *testing.T) {
	o := mustParse(t, "--version")
	if !o.Version {
		t.Fatal("version not set")
	}
	if _, err := ParseArgs(NewFlagSet("maptrack"), []string{"--examples"}); !errors.Is(err, clibase.ErrPrintedAndExitOK) {
		t.Fatalf("examples: %v", err)
	}
}
