// ./internal/arch/arch_test.go
package arch

import (
	"bytes"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"testing"
)

type pkg struct {
	ImportPath string
	Imports    []string
	Standard   bool
}

// commands lists the packages only a main package may import.
var commands = []string{
	"maptrack/internal/app", "maptrack/internal/diffapp", "maptrack/internal/appshell",
	"maptrack/internal/cli", "maptrack/internal/diffcli",
	"maptrack/cmd/",
}

func without(extra ...string) []string {
	return append(append([]string(nil), commands...), extra...)
}

// banned reports whether dep is ban itself or below it. A trailing slash
// matches any package under that directory.
func banned(dep, ban string) bool {
	if strings.HasSuffix(ban, "/") {
		return strings.HasPrefix(dep, ban)
	}
	return dep == ban || strings.HasPrefix(dep, ban+"/")
}

func TestImportBoundaries(t *testing.T) {
	cmd := exec.Command("go", "list", "-json", "./...")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("go list: %v", err)
	}
	dec := json.NewDecoder(&out)

	bans := map[string][]string{
		"maptrack/internal/pipeline": without("maptrack/internal/writers", "maptrack/internal/mapdiff", "maptrack/pkg/api"),
		"maptrack/internal/writers":  without("maptrack/internal/pipeline", "maptrack/internal/toolrun"),
		"maptrack/internal/mapdiff":  without("maptrack/internal/pipeline", "maptrack/internal/writers", "maptrack/internal/plots"),
		"maptrack/internal/plots":    without("maptrack/internal/pipeline", "maptrack/internal/writers"),
		"maptrack/internal/track":    without("maptrack/internal/pipeline", "maptrack/internal/mapdiff"),
		"maptrack/internal/annot":    without("maptrack/internal/pipeline", "maptrack/internal/mapdiff", "maptrack/internal/track"),
		"maptrack/internal/toolrun":  without("maptrack/internal/pipeline", "maptrack/internal/state"),
		"maptrack/internal/state":    without("maptrack/internal/pipeline", "maptrack/internal/toolrun"),
		"maptrack/pkg/api":           without("maptrack/internal/"),
	}

	var violations []string
	for {
		var p pkg
		if err := dec.Decode(&p); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !strings.HasPrefix(p.ImportPath, "maptrack/") {
			continue
		}
		imp := p.ImportPath
		for prefix, forbidden := range bans {
			if !banned(imp, prefix) {
				continue
			}
			for _, dep := range p.Imports {
				if !strings.HasPrefix(dep, "maptrack/") {
					continue
				}
				for _, ban := range forbidden {
					if banned(dep, ban) {
						violations = append(violations, imp+" → "+dep)
					}
				}
			}
		}
	}

	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n  %s", strings.Join(violations, "\n  "))
	}
}
