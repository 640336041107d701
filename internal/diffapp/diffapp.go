// Package diffapp is the maptrack-diff command: it compares the
// mappability tracks of one genome across k-mer sizes.
package diffapp

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"maptrack/internal/annot"
	"maptrack/internal/clibase"
	"maptrack/internal/diffcli"
	"maptrack/internal/logx"
	"maptrack/internal/mapdiff"
	"maptrack/internal/plots"
	"maptrack/internal/track"
	"maptrack/internal/version"
	"maptrack/internal/writers"
)

var log = logx.Get("maptrack-diff")

func flushed(w *bufio.Writer, stderr io.Writer, code int) int {
	if err := w.Flush(); writers.IsBrokenPipe(err) {
		return code
	} else if err != nil {
		fmt.Fprintln(stderr, err)
		return 3
	}
	return code
}

func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)

	fs := diffcli.NewFlagSet("maptrack-diff")
	fs.SetOutput(io.Discard)

	if len(argv) == 0 {
		_, _ = diffcli.ParseArgs(fs, []string{"-h"})
		fs.SetOutput(outw)
		fs.Usage()
		return flushed(outw, stderr, 0)
	}

	opts, err := diffcli.ParseArgs(fs, argv)
	if err != nil {
		switch {
		case errors.Is(err, clibase.ErrPrintedAndExitOK):
			diffcli.PrintExamples(outw)
			return flushed(outw, stderr, 0)
		case errors.Is(err, flag.ErrHelp):
			fs.SetOutput(outw)
			fs.Usage()
			return flushed(outw, stderr, 0)
		}
		fmt.Fprintln(stderr, err)
		fs.SetOutput(outw)
		fs.Usage()
		return flushed(outw, stderr, 2)
	}

	if opts.Version {
		fmt.Fprintf(outw, "maptrack-diff version %s\n", version.Version)
		return flushed(outw, stderr, 0)
	}

	if err := logx.Setup(stderr, opts.LogLevel, opts.Quiet); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	paths, err := track.Discover(opts.TrackDir)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if len(paths) < 2 {
		fmt.Fprintf(stderr, "maptrack-diff: need at least two tracks in %s, found %d\n", opts.TrackDir, len(paths))
		return 1
	}

	tracks, err := track.OpenAll(paths)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 3
	}
	defer track.CloseAll(tracks)

	mopt := mapdiff.Options{
		Epsilon:   opts.Epsilon,
		MinRegion: opts.MinRegion,
		MergeGap:  opts.MergeGap,
		Bins:      opts.Bins,
		Threads:   opts.Threads,
	}
	if opts.GTF != "" {
		genes, err := annot.LoadGTF(opts.GTF)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 3
		}
		if mopt.Genes, err = annot.NewIndex(genes); err != nil {
			fmt.Fprintln(stderr, err)
			return 3
		}
		log.Infof("loaded %d genes from %s", len(genes), opts.GTF)
	}

	res, err := mapdiff.Run(parent, tracks, mopt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warning("interrupted")
			return 130
		}
		fmt.Fprintf(stderr, "maptrack-diff: %v\n", err)
		return 3
	}

	if err := writeOutputs(opts, res); err != nil {
		fmt.Fprintf(stderr, "maptrack-diff: %v\n", err)
		return 3
	}

	if err := writers.WriteSummary(opts.Format, outw, writers.ToAPISummary(res, opts.Epsilon)); err != nil {
		if writers.IsBrokenPipe(err) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 3
	}
	if opts.Verbose {
		fmt.Fprintf(outw, "Analysis complete. Output saved to %s\n", opts.OutputDir)
	}
	return flushed(outw, stderr, 0)
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

// writeOutputs writes plots and tables into the output directory.
func writeOutputs(opts diffcli.Options, res *mapdiff.Result) error {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return err
	}
	if !opts.NoPlots {
		if err := plots.Distribution(plots.DistributionFile(opts.OutputDir), res.Tracks); err != nil {
			return err
		}
	}
	for i := range res.Comparisons {
		c := &res.Comparisons[i]
		if !opts.NoPlots {
			if err := plots.Changes(plots.ChangesFile(opts.OutputDir, c.Name), c); err != nil {
				return err
			}
		}
		if err := writers.WriteRegions(writers.RegionsFile(opts.OutputDir, c.Name, opts.Compress), c, opts.Compress); err != nil {
			return err
		}
		log.Debugf("%s: %d regions", c.Name, len(c.Regions))
	}
	if opts.GTF != "" {
		if err := writers.WriteGenes(writers.GenesFile(opts.OutputDir), res.Keys, res.Genes); err != nil {
			return err
		}
	}
	return nil
}
