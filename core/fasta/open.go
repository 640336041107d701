// core/fasta/open.go
package fasta

import (
	"compress/gzip"
	"io"
	"os"
	"strings"
)

// multiReadCloser closes multiple io.Closers when Close() is called.
type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Open returns a reader over path, transparently decompressing gzip.
// "-" reads STDIN.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := isGzip(fh, path)
	if err != nil {
		_ = fh.Close()
		return nil, err
	}
	if !gz {
		return fh, nil
	}
	gr, err := gzip.NewReader(fh)
	if err != nil {
		_ = fh.Close()
		return nil, err
	}
	return &multiReadCloser{Reader: gr, closers: []io.Closer{gr, fh}}, nil
}

// isGzip sniffs the magic number (1F 8B) and rewinds; the .gz suffix also counts.
func isGzip(fh *os.File, path string) (bool, error) {
	if strings.HasSuffix(path, ".gz") {
		return true, nil
	}
	var sig [2]byte
	n, _ := io.ReadFull(fh, sig[:])
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return n == 2 && sig[0] == 0x1f && sig[1] == 0x8b, nil
}
