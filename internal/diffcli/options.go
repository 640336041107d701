package diffcli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"maptrack/internal/clibase"
	"maptrack/internal/cliutil"
)

// Options holds all maptrack-diff flags and arguments.
type Options struct {
	clibase.Common

	TrackDir  string
	OutputDir string

	GTF       string
	Threads   int
	Epsilon   float64
	MinRegion int
	MergeGap  int
	Bins      int
	Format    string
	NoPlots   bool
	Compress  bool
	Verbose   bool
}

func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	clibase.UsageCommon(fs, name, "compare mappability across k-mer sizes", func(out io.Writer, def func(string) string) {
		fmt.Fprintln(out, "Usage:")
		fmt.Fprintf(out, "  %s [options] <bigwig_dir> <output_dir>\n", name)
		fmt.Fprintln(out, "\nTrack keys are the file name up to the first '_' and sort numerically")
		fmt.Fprintln(out, "when all are integers (24 < 36 < 100). Each pair is named <a>_vs_<b>")
		fmt.Fprintln(out, "with a before b, and its difference is track b minus track a.")

		fmt.Fprintln(out, "\nAnalysis:")
		fmt.Fprintln(out, "      --gtf file              Gene annotation (GTF, may be gzipped)")
		fmt.Fprintf(out, "      --epsilon float         |diff| above this counts as a change [%s]\n", def("epsilon"))
		fmt.Fprintf(out, "      --min-region int        Shortest change region reported [%s]\n", def("min-region"))
		fmt.Fprintf(out, "      --merge-gap int         Join change regions this close [%s]\n", def("merge-gap"))
		fmt.Fprintf(out, "      --bins int              Histogram bins [%s]\n", def("bins"))
		fmt.Fprintf(out, "  -t, --threads int           Chromosome workers (0=all CPUs) [%s]\n", def("threads"))

		fmt.Fprintln(out, "\nOutput:")
		fmt.Fprintf(out, "      --format string         Summary on stdout: text | json | jsonl [%s]\n", def("format"))
		fmt.Fprintf(out, "      --no-plots              Skip PNG plots [%s]\n", def("no-plots"))
		fmt.Fprintf(out, "      --compress              Snappy-compress region tables (.tsv.sz) [%s]\n", def("compress"))
		fmt.Fprintf(out, "  -v, --verbose               Print a completion line [%s]\n", def("verbose"))
	})
	return fs
}

// PrintExamples prints a tiny quickstart for maptrack-diff.
func PrintExamples(out io.Writer) {
	clibase.PrintExamples(out, "maptrack-diff", func(w io.Writer) {
		fmt.Fprintln(w, "Compare the tracks maptrack produced for one genome:")
		fmt.Fprintln(w, "  maptrack-diff -v mappability/hg38/bigwig diff/")
		fmt.Fprintln(w, "\nWith genes and merged regions, JSON summary:")
		fmt.Fprintln(w, "  maptrack-diff --gtf genes.gtf.gz --merge-gap 10 --format json mappability/hg38/bigwig diff/")
	})
}

func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	var o Options
	var help bool

	var c clibase.Common
	clibase.Register(fs, &c)

	fs.StringVar(&o.GTF, "gtf", "", "gene annotation (GTF)")
	fs.IntVar(&o.Threads, "threads", 0, "chromosome workers (0 = all CPUs) [0]")
	fs.IntVar(&o.Threads, "t", 0, "alias of --threads")
	fs.Float64Var(&o.Epsilon, "epsilon", 1e-6, "|diff| above this counts as a change [1e-06]")
	fs.IntVar(&o.MinRegion, "min-region", 1, "shortest change region reported [1]")
	fs.IntVar(&o.MergeGap, "merge-gap", 0, "join change regions this close [0]")
	fs.IntVar(&o.Bins, "bins", 100, "histogram bins [100]")
	fs.StringVar(&o.Format, "format", "text", "summary format: text | json | jsonl [text]")
	fs.BoolVar(&o.NoPlots, "no-plots", false, "skip PNG plots [false]")
	fs.BoolVar(&o.Compress, "compress", false, "snappy-compress region tables [false]")
	fs.BoolVar(&o.Verbose, "verbose", false, "print a completion line [false]")
	fs.BoolVar(&o.Verbose, "v", false, "alias of --verbose")
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

	if len(posArgs) != 2 {
		return o, fmt.Errorf("expected <bigwig_dir> <output_dir>, got %d argument(s)", len(posArgs))
	}
	o.TrackDir, o.OutputDir = posArgs[0], posArgs[1]
	return o, Validate(&o)
}

func Validate(o *Options) error {
	if o.Threads < 0 {
		return errors.New("--threads must be ≥ 0")
	}
	if !(o.Epsilon >= 0) {
		return errors.New("--epsilon must be ≥ 0")
	}
	if o.MinRegion < 1 {
		return errors.New("--min-region must be ≥ 1")
	}
	if o.MergeGap < 0 {
		return errors.New("--merge-gap must be ≥ 0")
	}
	if o.Bins < 1 {
		return errors.New("--bins must be ≥ 1")
	}
	switch o.Format {
	case "text", "json", "jsonl":
	default:
		return fmt.Errorf("invalid --format %q", o.Format)
	}
	return nil
}
