// internal/clibase/common.go
package clibase

import (
	"flag"

	"maptrack/internal/config"
	"maptrack/internal/logx"
)

// Common holds CLI fields shared by maptrack and maptrack-diff.
type Common struct {
	Config   string
	LogLevel string
	Quiet    bool
	Version  bool
	Examples bool
}

// Register wires shared flags onto fs.
func Register(fs *flag.FlagSet, c *Common) {
	fs.StringVar(&c.Config, "config", "", "JSON file with flag defaults")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level: debug | info | warning | error [info]")
	fs.BoolVar(&c.Quiet, "quiet", false, "only log warnings and errors [false]")
	fs.BoolVar(&c.Quiet, "q", false, "alias of --quiet")
	fs.BoolVar(&c.Version, "version", false, "print version and exit [false]")
	fs.BoolVar(&c.Examples, "examples", false, "show quickstart examples and exit [false]")
}

// AfterParse applies the config file, then runs shared validation.
// Flags given on the command line keep their values.
func AfterParse(fs *flag.FlagSet, c *Common) error {
	if err := config.ApplyFile(fs, c.Config); err != nil {
		return err
	}
	return Validate(c)
}

// Validate applies shared CLI invariants used by all tools.
func Validate(c *Common) error {
	_, err := logx.ParseLevel(c.LogLevel)
	return err
}
