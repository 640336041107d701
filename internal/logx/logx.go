// Package logx configures the shared go-logging backend for the maptrack tools.
package logx

import (
	"fmt"
	"io"
	"strings"

	logging "github.com/op/go-logging"
)

var format = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}`,
)

// Get returns the named module logger.
func Get(module string) *logging.Logger { return logging.MustGetLogger(module) }

// ParseLevel accepts debug|info|notice|warning|error|critical (any case).
func ParseLevel(s string) (logging.Level, error) {
	if s == "" {
		return logging.INFO, nil
	}
	lvl, err := logging.LogLevel(strings.ToUpper(s))
	if err != nil {
		return logging.INFO, fmt.Errorf("invalid --log-level %q", s)
	}
	return lvl, nil
}

// Setup routes every module logger to w at the given level. quiet caps
// the level at WARNING so only problems are reported.
func Setup(w io.Writer, level string, quiet bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if quiet && lvl > logging.WARNING {
		lvl = logging.WARNING
	}
	backend := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(backend, format)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return nil
}
