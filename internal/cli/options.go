// internal/cli/options.go
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"maptrack/internal/clibase"
	"maptrack/internal/cliutil"
)

// Options holds all maptrack flags and arguments.
type Options struct {
	clibase.Common

	Inputs []string // FASTA files, directories or globs (expanded by fasta.Discover)

	// Mapping
	Out    string
	Kmers  cliutil.IntList
	Errors int

	// Performance
	Threads int
	Jobs    int

	// Tools
	Genmap      string
	Samtools    string
	WigToBigWig string

	// Derivation
	SizesSource string
	SizesFile   string
	Converter   string

	// Run control / output
	Force  bool
	DryRun bool
	Report string
}

// NewFlagSet returns a configured FlagSet with custom usage/help.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	clibase.UsageCommon(fs, name, "genome mappability tracks", func(out io.Writer, def func(string) string) {
		fmt.Fprintln(out, "Usage:")
		fmt.Fprintf(out, "  %s [options] <fasta|dir|glob>...\n", name)

		fmt.Fprintln(out, "\nMapping:")
		fmt.Fprintf(out, "  -o, --out dir               Output directory [%s]\n", def("out"))
		fmt.Fprintf(out, "  -k, --kmers list            K-mer sizes, comma separated [%s]\n", def("kmers"))
		fmt.Fprintf(out, "  -e, --errors int            Mismatches allowed by genmap [%s]\n", def("errors"))

		fmt.Fprintln(out, "\nPerformance:")
		fmt.Fprintf(out, "  -T, --threads int           genmap threads (0=genmap default) [%s]\n", def("threads"))
		fmt.Fprintf(out, "  -j, --jobs int              Steps run concurrently per stage [%s]\n", def("jobs"))

		fmt.Fprintln(out, "\nTools:")
		fmt.Fprintf(out, "      --genmap path           genmap executable [%s]\n", def("genmap"))
		fmt.Fprintf(out, "      --samtools path         samtools executable [%s]\n", def("samtools"))
		fmt.Fprintf(out, "      --wig-to-bigwig path    wigToBigWig executable [%s]\n", def("wig-to-bigwig"))

		fmt.Fprintln(out, "\nConversion:")
		fmt.Fprintf(out, "      --chrom-sizes-source s  auto | genmap | faidx | fasta [%s]\n", def("chrom-sizes-source"))
		fmt.Fprintln(out, "      --chrom-sizes file      Use this chrom-sizes file for every genome")
		fmt.Fprintf(out, "      --converter string      auto | external | native [%s]\n", def("converter"))

		fmt.Fprintln(out, "\nRun control:")
		fmt.Fprintf(out, "  -f, --force                 Rerun steps even when up to date [%s]\n", def("force"))
		fmt.Fprintf(out, "  -n, --dry-run               Print the plan without running anything [%s]\n", def("dry-run"))
		fmt.Fprintf(out, "      --report string         Step report on stdout: text | json [%s]\n", def("report"))
	})
	return fs
}

// PrintExamples prints a tiny quickstart for maptrack.
func PrintExamples(out io.Writer) {
	clibase.PrintExamples(out, "maptrack", func(w io.Writer) {
		fmt.Fprintln(w, "Map every genome in a directory at the default k-mer sizes:")
		fmt.Fprintln(w, "  maptrack --out mappability genomes/")
		fmt.Fprintln(w, "\nTwo k-mer sizes, one mismatch, see the plan first:")
		fmt.Fprintln(w, "  maptrack -k 36,100 -e 1 --dry-run hg38.fa.gz")
	})
}

// ParseArgs registers and parses all flags, returns an Options struct.
func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	var o Options
	var help bool

	var c clibase.Common
	clibase.Register(fs, &c)

	o.Kmers = cliutil.IntList{24, 36, 50, 100}
	fs.StringVar(&o.Out, "out", "mappability", "output directory [mappability]")
	fs.StringVar(&o.Out, "o", "mappability", "alias of --out")
	fs.Var(&o.Kmers, "kmers", "k-mer sizes, comma separated [24,36,50,100]")
	fs.Var(&o.Kmers, "k", "alias of --kmers")
	fs.IntVar(&o.Errors, "errors", 2, "mismatches allowed by genmap [2]")
	fs.IntVar(&o.Errors, "e", 2, "alias of --errors")

	fs.IntVar(&o.Threads, "threads", 0, "genmap threads (0 = genmap default) [0]")
	fs.IntVar(&o.Threads, "T", 0, "alias of --threads")
	fs.IntVar(&o.Jobs, "jobs", 1, "steps run concurrently per stage [1]")
	fs.IntVar(&o.Jobs, "j", 1, "alias of --jobs")

	fs.StringVar(&o.Genmap, "genmap", "genmap", "genmap executable [genmap]")
	fs.StringVar(&o.Samtools, "samtools", "samtools", "samtools executable [samtools]")
	fs.StringVar(&o.WigToBigWig, "wig-to-bigwig", "wigToBigWig", "wigToBigWig executable [wigToBigWig]")

	fs.StringVar(&o.SizesSource, "chrom-sizes-source", "auto", "auto | genmap | faidx | fasta [auto]")
	fs.StringVar(&o.SizesFile, "chrom-sizes", "", "chrom-sizes file used for every genome")
	fs.StringVar(&o.Converter, "converter", "auto", "auto | external | native [auto]")

	fs.BoolVar(&o.Force, "force", false, "rerun steps even when up to date [false]")
	fs.BoolVar(&o.Force, "f", false, "alias of --force")
	fs.BoolVar(&o.DryRun, "dry-run", false, "print the plan without running anything [false]")
	fs.BoolVar(&o.DryRun, "n", false, "alias of --dry-run")
	fs.StringVar(&o.Report, "report", "text", "step report: text | json [text]")

	fs.BoolVar(&help, "h", false, "show this help [false]")

	flagArgs, posArgs := cliutil.SplitFlagsAndPositionals(fs, argv)
	if err := fs.Parse(flagArgs); err != nil {
		return o, err
	}
	if c.Examples {
		return o, clibase.ErrPrintedAndExitOK
	}
	if help {
		return o, flag.ErrHelp
	}
	if c.Version {
		o.Common = c
		return o, nil
	}
	if err := clibase.AfterParse(fs, &c); err != nil {
		return o, err
	}
	o.Common = c

	o.Inputs = posArgs
	return o, Validate(&o)
}

// Validate checks option invariants.
func Validate(o *Options) error {
	if len(o.Inputs) == 0 {
		return errors.New("at least one FASTA file or directory is required")
	}
	if o.Out == "" {
		return errors.New("--out must not be empty")
	}
	seen := map[int]bool{}
	for _, k := range o.Kmers {
		if k < 1 {
			return fmt.Errorf("--kmers: %d must be > 0", k)
		}
		if seen[k] {
			return fmt.Errorf("--kmers: %d given twice", k)
		}
		seen[k] = true
	}
	if o.Errors < 0 {
		return errors.New("--errors must be ≥ 0")
	}
	if o.Threads < 0 {
		return errors.New("--threads must be ≥ 0")
	}
	if o.Jobs < 1 {
		return errors.New("--jobs must be ≥ 1")
	}
	switch o.SizesSource {
	case "auto", "genmap", "faidx", "fasta":
	default:
		return fmt.Errorf("invalid --chrom-sizes-source %q", o.SizesSource)
	}
	switch o.Converter {
	case "auto", "external", "native":
	default:
		return fmt.Errorf("invalid --converter %q", o.Converter)
	}
	switch o.Report {
	case "text", "json":
	default:
		return fmt.Errorf("invalid --report %q", o.Report)
	}
	return nil
}
