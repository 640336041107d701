// Package config fills flag defaults from a JSON file.
//
// Keys are flag names. Flags given on the command line win over the file:
//
//	{"kmers": [24, 36], "errors": 1, "genmap": "/opt/genmap/bin/genmap"}
package config

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"maptrack/internal/jsonutil"
)

// Load reads a JSON object from path.
func Load(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := jsonutil.DecodeNumbers(bytes.NewReader(b), &m); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return m, nil
}

// Apply sets every flag named in values that was not set explicitly on fs.
// Aliases bound to the same variable count as set together. Unknown keys
// and values of the wrong shape are errors.
func Apply(fs *flag.FlagSet, values map[string]any) error {
	var set []flag.Value
	fs.Visit(func(f *flag.Flag) { set = append(set, f.Value) })
	isSet := func(f *flag.Flag) bool {
		for _, v := range set {
			if v == f.Value {
				return true
			}
		}
		return false
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f := fs.Lookup(k)
		if f == nil {
			return fmt.Errorf("config: unknown option %q", k)
		}
		if isSet(f) {
			continue
		}
		s, err := toFlagString(values[k])
		if err != nil {
			return fmt.Errorf("config: %s: %w", k, err)
		}
		if err := fs.Set(k, s); err != nil {
			return fmt.Errorf("config: %s: %w", k, err)
		}
	}
	return nil
}

// ApplyFile is Load followed by Apply. An empty path is a no-op.
func ApplyFile(fs *flag.FlagSet, path string) error {
	if path == "" {
		return nil
	}
	m, err := Load(path)
	if err != nil {
		return err
	}
	return Apply(fs, m)
}

func toFlagString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case json.Number:
		return x.String(), nil
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			s, err := toFlagString(e)
			if err != nil {
				return "", err
			}
			if strings.Contains(s, ",") {
				return "", fmt.Errorf("list element %q contains a comma", s)
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	case nil:
		return "", fmt.Errorf("null value")
	}
	return "", fmt.Errorf("unsupported value %v", v)
}
