// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"maptrack-core/fasta"

	"maptrack/internal/cli"
	"maptrack/internal/clibase"
	"maptrack/internal/layout"
	"maptrack/internal/logx"
	"maptrack/internal/pipeline"
	"maptrack/internal/state"
	"maptrack/internal/toolrun"
	"maptrack/internal/version"
	"maptrack/internal/writers"
	"maptrack/pkg/api"
)

var log = logx.Get("maptrack")

// flushed flushes w and maps the outcome to an exit code.
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

	fs := cli.NewFlagSet("maptrack")
	fs.SetOutput(io.Discard)

	if len(argv) == 0 {
		_, _ = cli.ParseArgs(fs, []string{"-h"})
		fs.SetOutput(outw)
		fs.Usage()
		return flushed(outw, stderr, 0)
	}

	opts, err := cli.ParseArgs(fs, argv)
	if err != nil {
		switch {
		case errors.Is(err, clibase.ErrPrintedAndExitOK):
			cli.PrintExamples(outw)
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
		fmt.Fprintf(outw, "maptrack version %s\n", version.Version)
		return flushed(outw, stderr, 0)
	}

	if err := logx.Setup(stderr, opts.LogLevel, opts.Quiet); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	fastas, err := fasta.Discover(opts.Inputs)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	tools, err := resolveTools(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg := pipeline.Config{
		Out:         opts.Out,
		Kmers:       opts.Kmers,
		Errors:      opts.Errors,
		Threads:     opts.Threads,
		Jobs:        opts.Jobs,
		SizesSource: opts.SizesSource,
		SizesFile:   opts.SizesFile,
		Converter:   opts.Converter,
		Force:       opts.Force,
		DryRun:      opts.DryRun,
	}

	var store *state.Store
	if !opts.DryRun {
		if err := os.MkdirAll(opts.Out, 0o755); err != nil {
			fmt.Fprintln(stderr, err)
			return 3
		}
		store, err = state.Open(layout.New(opts.Out).StateDir())
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 3
		}
		defer store.Close()
	}

	runner := &toolrun.Runner{Log: logx.Get("toolrun")}
	p, err := pipeline.New(cfg, tools, runner, store, logx.Get("pipeline"))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	eff := p.Config()

	meta := api.RunReportV1{
		RunID:   eff.RunID,
		Version: version.Version,
		Out:     eff.Out,
		Kmers:   eff.Kmers,
		Errors:  eff.Errors,
		DryRun:  eff.DryRun,
	}
	// The text report streams, so it bypasses the buffered writer.
	steps, done := writers.StartReportWriter(stdout, opts.Report, meta, 16)

	start := time.Now()
	runErr := p.Run(parent, fastas, func(r pipeline.StepReport) error {
		steps <- ToAPIStep(r)
		return nil
	})
	close(steps)

	if werr := <-done; werr != nil && !writers.IsBrokenPipe(werr) {
		fmt.Fprintln(stderr, werr)
		return 3
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warning("interrupted")
			return 130
		}
		fmt.Fprintf(stderr, "maptrack: %v\n", runErr)
		return 3
	}
	log.Infof("run %s finished in %s", eff.RunID, time.Since(start).Round(time.Millisecond))
	return 0
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

// resolveTools locates the executables. genmap is mandatory except in a
// dry run; the other two only when the options demand them.
func resolveTools(o cli.Options) (pipeline.Tools, error) {
	var t pipeline.Tools

	p, err := toolrun.Resolve("genmap", o.Genmap)
	switch {
	case err == nil:
		t.Genmap = p
	case o.DryRun:
		log.Warningf("%v (dry run continues)", err)
		t.Genmap = o.Genmap
	default:
		return t, err
	}

	if p, err := toolrun.Resolve("samtools", o.Samtools); err == nil {
		t.Samtools = p
	} else if o.SizesSource == pipeline.SizesFAIDX && o.SizesFile == "" {
		return t, err
	} else {
		log.Debugf("samtools unavailable: %v", err)
	}

	if p, err := toolrun.Resolve("wigToBigWig", o.WigToBigWig); err == nil {
		t.WigToBigWig = p
	} else if o.Converter == pipeline.ConvertExternal {
		return t, err
	} else if o.Converter == pipeline.ConvertAuto {
		log.Infof("wigToBigWig unavailable, using the native converter: %v", err)
	}
	return t, nil
}
