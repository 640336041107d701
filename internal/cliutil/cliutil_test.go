package cliutil

import (
	"flag"
	"testing"
)

func TestSplitFlagsAndPositionals(t *testing.T) {
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	var b bool
	fs.BoolVar(&b, "bool", false, "")
	flagArgs, posArgs := SplitFlagsAndPositionals(fs, []string{"--bool", "pos1", "--", "pos2"})
	if len(flagArgs) != 1 || len(posArgs) != 2 || posArgs[0] != "pos1" || posArgs[1] != "pos2" {
		t.Fatalf("unexpected split: %v / %v", flagArgs, posArgs)
	}
}

func TestIntList(t *testing.T) {
	l := IntList{24, 36}
	if l.String() != "24,36" {
		t.Fatalf("String = %q", l.String())
	}
	if err := l.Set("50, 100,"); err != nil || len(l) != 2 || l[0] != 50 || l[1] != 100 {
		t.Fatalf("Set: %v %v", l, err)
	}
	if err := l.Set("x"); err == nil {
		t.Fatal("expected error")
	}
	if err := l.Set(","); err == nil {
		t.Fatal("expected error for empty list")
	}
}
