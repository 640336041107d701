package fasta

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
)

// ScanLengthsCtx streams the FASTA at path and emits each record's ID and
// sequence length. Sequences are never held in memory. Whitespace inside
// sequence lines is not counted.
//
// It is cancelable: it returns promptly with ctx.Err() once ctx is Done.
func ScanLengthsCtx(ctx context.Context, path string, emit func(id string, length int) error) error {
	rc, err := Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	const maxLine = 64 * 1024 * 1024 // allow very long single-line sequences (64 MiB)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		id     string
		inRec  bool
		length int
		lines  int
	)
	for sc.Scan() {
		lines++
		if lines&0x3ff == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if inRec {
				if err := emit(id, length); err != nil {
					return err
				}
			}
			id = parseHeaderID(line[1:])
			inRec = true
			length = 0
			continue
		}
		if !inRec {
			return fmt.Errorf("%s:%d: sequence data before first header", path, lines)
		}
		length += countResidues(line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("fasta scan: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if inRec {
		return emit(id, length)
	}
	return nil
}

func countResidues(line []byte) int {
	n := 0
	for _, c := range line {
		switch c {
		case ' ', '\t', '\r':
		default:
			n++
		}
	}
	return n
}

func parseHeaderID(hdr []byte) string {
	hdr = bytes.TrimSpace(hdr)
	if i := bytes.IndexAny(hdr, " \t"); i >= 0 {
		return string(hdr[:i])
	}
	return string(hdr)
}
