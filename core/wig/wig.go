// Package wig parses UCSC wiggle tracks (fixedStep, variableStep and
// bedGraph-style data lines) into 0-based half-open intervals.
package wig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind is the section layout; values match the BigWig section type byte.
type Kind uint8

const (
	BedGraph     Kind = 1
	VariableStep Kind = 2
	FixedStep    Kind = 3
)

func (k Kind) String() string {
	switch k {
	case BedGraph:
		return "bedGraph"
	case VariableStep:
		return "variableStep"
	case FixedStep:
		return "fixedStep"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Item is one scored interval, 0-based half-open.
type Item struct {
	Start, End int
	Value      float32
}

// Section is a run of items on one chromosome sharing a layout.
// Start/Step/Span are only meaningful for FixedStep and VariableStep.
type Section struct {
	Chrom string
	Kind  Kind
	Start int
	Step  int
	Span  int
	Items []Item
}

// Parse reads a whole wiggle stream.
func Parse(r io.Reader) ([]Section, error) {
	p := parser{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		p.line++
		if err := p.feed(sc.Text()); err != nil {
			return nil, fmt.Errorf("wig line %d: %w", p.line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	p.flush()
	return p.out, nil
}

type parser struct {
	out  []Section
	cur  *Section
	next int // next fixedStep start
	line int
}

func (p *parser) flush() {
	if p.cur != nil && len(p.cur.Items) > 0 {
		p.out = append(p.out, *p.cur)
	}
	p.cur = nil
}

func (p *parser) feed(raw string) error {
	line := strings.TrimSpace(raw)
	switch {
	case line == "", line[0] == '#':
		return nil
	case strings.HasPrefix(line, "track"), strings.HasPrefix(line, "browser"):
		p.flush()
		return nil
	case strings.HasPrefix(line, "variableStep"):
		return p.header(VariableStep, line)
	case strings.HasPrefix(line, "fixedStep"):
		return p.header(FixedStep, line)
	}

	f := strings.Fields(line)
	// bedGraph lines only start or extend a bedGraph run; inside a
	// step section they are malformed data.
	if p.cur == nil || p.cur.Kind == BedGraph {
		if len(f) == 4 {
			return p.bedGraph(f)
		}
		return fmt.Errorf("data line outside a section: %q", line)
	}
	switch p.cur.Kind {
	case VariableStep:
		if len(f) != 2 {
			return fmt.Errorf("variableStep wants 'pos value', got %q", line)
		}
		pos, err := strconv.Atoi(f[0])
		if err != nil || pos < 1 {
			return fmt.Errorf("bad position %q", f[0])
		}
		v, err := parseValue(f[1])
		if err != nil {
			return err
		}
		p.cur.Items = append(p.cur.Items, Item{Start: pos - 1, End: pos - 1 + p.cur.Span, Value: v})
	case FixedStep:
		if len(f) != 1 {
			return fmt.Errorf("fixedStep wants a single value, got %q", line)
		}
		v, err := parseValue(f[0])
		if err != nil {
			return err
		}
		p.cur.Items = append(p.cur.Items, Item{Start: p.next, End: p.next + p.cur.Span, Value: v})
		p.next += p.cur.Step
	}
	return nil
}

func (p *parser) bedGraph(f []string) error {
	start, err1 := strconv.Atoi(f[1])
	end, err2 := strconv.Atoi(f[2])
	if err1 != nil || err2 != nil || start < 0 || end <= start {
		return fmt.Errorf("bad bedGraph interval %s %s", f[1], f[2])
	}
	v, err := parseValue(f[3])
	if err != nil {
		return err
	}
	if p.cur == nil || p.cur.Kind != BedGraph || p.cur.Chrom != f[0] {
		p.flush()
		p.cur = &Section{Chrom: f[0], Kind: BedGraph}
	}
	p.cur.Items = append(p.cur.Items, Item{Start: start, End: end, Value: v})
	return nil
}

func (p *parser) header(kind Kind, line string) error {
	p.flush()
	s := Section{Kind: kind, Step: 1, Span: 1}
	start := -1
	for _, kv := range strings.Fields(line)[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("bad attribute %q", kv)
		}
		n := 0
		if k != "chrom" {
			var err error
			n, err = strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("bad %s=%q", k, v)
			}
		}
		switch k {
		case "chrom":
			s.Chrom = v
		case "start":
			start = n
		case "step":
			s.Step = n
		case "span":
			s.Span = n
		default:
			return fmt.Errorf("unknown attribute %q", k)
		}
	}
	if s.Chrom == "" {
		return fmt.Errorf("%s without chrom=", kind)
	}
	if s.Span < 1 || s.Step < 1 {
		return fmt.Errorf("%s: step and span must be >= 1", kind)
	}
	if kind == FixedStep {
		if start < 1 {
			return fmt.Errorf("fixedStep needs start >= 1")
		}
		s.Start = start - 1
		p.next = s.Start
	}
	p.cur = &s
	return nil
}

func parseValue(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	return float32(v), nil
}
