package bigwig

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
)

// Reader gives random access to a BigWig file. It is safe for concurrent
// use when the underlying io.ReaderAt is (as *os.File is).
type Reader struct {
	ra     io.ReaderAt
	closer io.Closer
	bo     binary.ByteOrder
	hdr    header

	chroms  []Chrom
	byName  map[string]int
	summary Summary
	root    int64 // R-tree root node
}

// Open opens path and parses the header, summary and chromosome tree.
func Open(path string) (*Reader, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(fh)
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = fh
	return r, nil
}

// NewReader parses a BigWig from ra. Close is a no-op for readers built
// this way.
func NewReader(ra io.ReaderAt) (*Reader, error) {
	r := &Reader{ra: ra, byName: map[string]int{}}
	b, err := r.read(0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("bigwig header: %w", err)
	}
	switch {
	case binary.LittleEndian.Uint32(b) == Magic:
		r.bo = binary.LittleEndian
	case binary.BigEndian.Uint32(b) == Magic:
		r.bo = binary.BigEndian
	default:
		return nil, ErrNotBigWig
	}
	bo := r.bo
	r.hdr = header{
		Version:            bo.Uint16(b[4:]),
		ZoomLevels:         bo.Uint16(b[6:]),
		ChromTreeOffset:    bo.Uint64(b[8:]),
		FullDataOffset:     bo.Uint64(b[16:]),
		FullIndexOffset:    bo.Uint64(b[24:]),
		FieldCount:         bo.Uint16(b[32:]),
		DefinedFieldCount:  bo.Uint16(b[34:]),
		AutoSQLOffset:      bo.Uint64(b[36:]),
		TotalSummaryOffset: bo.Uint64(b[44:]),
		UncompressBufSize:  bo.Uint32(b[52:]),
		ExtensionOffset:    bo.Uint64(b[56:]),
	}

	if off := r.hdr.TotalSummaryOffset; off != 0 {
		s, err := r.read(int64(off), summarySize)
		if err != nil {
			return nil, fmt.Errorf("bigwig summary: %w", err)
		}
		r.summary = Summary{
			BasesCovered: bo.Uint64(s[0:]),
			Min:          math.Float64frombits(bo.Uint64(s[8:])),
			Max:          math.Float64frombits(bo.Uint64(s[16:])),
			Sum:          math.Float64frombits(bo.Uint64(s[24:])),
			SumSquares:   math.Float64frombits(bo.Uint64(s[32:])),
		}
	}

	if err := r.readChromTree(); err != nil {
		return nil, err
	}

	ih, err := r.read(int64(r.hdr.FullIndexOffset), rTreeHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("bigwig index: %w", err)
	}
	if bo.Uint32(ih) != rTreeMagic {
		return nil, fmt.Errorf("bigwig index: bad R-tree magic %#x", bo.Uint32(ih))
	}
	r.root = int64(r.hdr.FullIndexOffset) + rTreeHeaderSize
	return r, nil
}

// Close releases the file opened by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Chroms lists chromosomes ordered by ID.
func (r *Reader) Chroms() []Chrom { return append([]Chrom(nil), r.chroms...) }

// Chrom looks a chromosome up by name.
func (r *Reader) Chrom(name string) (Chrom, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Chrom{}, false
	}
	return r.chroms[i], true
}

// Summary is the stored total summary (zero when the file has none).
func (r *Reader) Summary() Summary { return r.summary }

// Version of the file format.
func (r *Reader) Version() int { return int(r.hdr.Version) }

func (r *Reader) read(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	m, err := r.ra.ReadAt(buf, off)
	if m == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

func (r *Reader) readChromTree() error {
	bo := r.bo
	off := int64(r.hdr.ChromTreeOffset)
	h, err := r.read(off, chromTreeHeader)
	if err != nil {
		return fmt.Errorf("bigwig chrom tree: %w", err)
	}
	if bo.Uint32(h) != chromTreeMagic {
		return fmt.Errorf("bigwig chrom tree: bad magic %#x", bo.Uint32(h))
	}
	keySize := int(bo.Uint32(h[8:]))
	valSize := int(bo.Uint32(h[12:]))
	if valSize != 8 {
		return fmt.Errorf("bigwig chrom tree: value size %d, want 8", valSize)
	}
	if err := r.walkChromNode(off+chromTreeHeader, keySize, 0); err != nil {
		return err
	}
	sort.Slice(r.chroms, func(i, j int) bool { return r.chroms[i].ID < r.chroms[j].ID })
	for i, c := range r.chroms {
		r.byName[c.Name] = i
	}
	return nil
}

func (r *Reader) walkChromNode(off int64, keySize, depth int) error {
	if depth > 64 {
		return fmt.Errorf("bigwig chrom tree: too deep")
	}
	nh, err := r.read(off, nodeHeaderSize)
	if err != nil {
		return fmt.Errorf("bigwig chrom node: %w", err)
	}
	leaf := nh[0] == 1
	count := int(r.bo.Uint16(nh[2:]))
	itemSize := keySize + 8
	items, err := r.read(off+nodeHeaderSize, count*itemSize)
	if err != nil {
		return fmt.Errorf("bigwig chrom node: %w", err)
	}
	for i := 0; i < count; i++ {
		it := items[i*itemSize : (i+1)*itemSize]
		if leaf {
			r.chroms = append(r.chroms, Chrom{
				Name: strings.TrimRight(string(it[:keySize]), "\x00"),
				ID:   r.bo.Uint32(it[keySize:]),
				Size: int(r.bo.Uint32(it[keySize+4:])),
			})
			continue
		}
		if err := r.walkChromNode(int64(r.bo.Uint64(it[keySize:])), keySize, depth+1); err != nil {
			return err
		}
	}
	return nil
}

type block struct {
	off, size uint64
}

// before reports (ac, ab) < (bc, bb) in (chrom, base) order.
func before(ac, ab, bc, bb uint32) bool {
	return ac < bc || (ac == bc && ab < bb)
}

func (r *Reader) findBlocks(off int64, chrom, start, end uint32, depth int, out []block) ([]block, error) {
	if depth > 64 {
		return nil, fmt.Errorf("bigwig index: too deep")
	}
	nh, err := r.read(off, nodeHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("bigwig index node: %w", err)
	}
	leaf := nh[0] == 1
	count := int(r.bo.Uint16(nh[2:]))
	itemSize := rInnerItemSize
	if leaf {
		itemSize = rLeafItemSize
	}
	items, err := r.read(off+nodeHeaderSize, count*itemSize)
	if err != nil {
		return nil, fmt.Errorf("bigwig index node: %w", err)
	}
	bo := r.bo
	for i := 0; i < count; i++ {
		it := items[i*itemSize:]
		sc, sb := bo.Uint32(it[0:]), bo.Uint32(it[4:])
		ec, eb := bo.Uint32(it[8:]), bo.Uint32(it[12:])
		// overlap when item.start < query.end and item.end > query.start
		if !before(sc, sb, chrom, end) || !before(chrom, start, ec, eb) {
			continue
		}
		if leaf {
			out = append(out, block{off: bo.Uint64(it[16:]), size: bo.Uint64(it[24:])})
			continue
		}
		if out, err = r.findBlocks(int64(bo.Uint64(it[16:])), chrom, start, end, depth+1, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Reader) blockData(b block) ([]byte, error) {
	raw, err := r.read(int64(b.off), int(b.size))
	if err != nil {
		return nil, fmt.Errorf("bigwig block @%d: %w", b.off, err)
	}
	if r.hdr.UncompressBufSize == 0 {
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("bigwig block @%d: %w", b.off, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("bigwig block @%d: %w", b.off, err)
	}
	return data, nil
}

// decodeSections appends every item of chrom overlapping [start, end).
func (r *Reader) decodeSections(data []byte, chrom uint32, start, end int, out []Interval) ([]Interval, error) {
	bo := r.bo
	for len(data) > 0 {
		if len(data) < sectionHdrSize {
			return nil, fmt.Errorf("bigwig: truncated section header")
		}
		cid := bo.Uint32(data[0:])
		sStart := int(bo.Uint32(data[4:]))
		step := int(bo.Uint32(data[12:]))
		span := int(bo.Uint32(data[16:]))
		typ := data[20]
		n := int(bo.Uint16(data[22:]))
		data = data[sectionHdrSize:]

		var itemSize int
		switch typ {
		case typeBedGraph:
			itemSize = 12
		case typeVariableStep:
			itemSize = 8
		case typeFixedStep:
			itemSize = 4
		default:
			return nil, fmt.Errorf("bigwig: unknown section type %d", typ)
		}
		if len(data) < n*itemSize {
			return nil, fmt.Errorf("bigwig: truncated section")
		}
		if cid == chrom {
			for i := 0; i < n; i++ {
				it := data[i*itemSize:]
				var iv Interval
				switch typ {
				case typeBedGraph:
					iv = Interval{Start: int(bo.Uint32(it[0:])), End: int(bo.Uint32(it[4:])), Value: math.Float32frombits(bo.Uint32(it[8:]))}
				case typeVariableStep:
					s := int(bo.Uint32(it[0:]))
					iv = Interval{Start: s, End: s + span, Value: math.Float32frombits(bo.Uint32(it[4:]))}
				case typeFixedStep:
					s := sStart + i*step
					iv = Interval{Start: s, End: s + span, Value: math.Float32frombits(bo.Uint32(it[0:]))}
				}
				if iv.End > start && iv.Start < end {
					out = append(out, iv)
				}
			}
		}
		data = data[n*itemSize:]
	}
	return out, nil
}

func (r *Reader) checkRange(chrom string, start, end int) (Chrom, error) {
	c, ok := r.Chrom(chrom)
	if !ok {
		return Chrom{}, fmt.Errorf("%w: %s", ErrUnknownChrom, chrom)
	}
	if start < 0 || end < start || end > c.Size {
		return Chrom{}, fmt.Errorf("bigwig: range %s:%d-%d outside [0,%d]", chrom, start, end, c.Size)
	}
	return c, nil
}

// Intervals returns the stored intervals of chrom overlapping [start, end),
// unclipped and in file order.
func (r *Reader) Intervals(chrom string, start, end int) ([]Interval, error) {
	c, err := r.checkRange(chrom, start, end)
	if err != nil {
		return nil, err
	}
	if start == end {
		return nil, nil
	}
	blocks, err := r.findBlocks(r.root, c.ID, uint32(start), uint32(end), 0, nil)
	if err != nil {
		return nil, err
	}
	var out []Interval
	for _, b := range blocks {
		data, err := r.blockData(b)
		if err != nil {
			return nil, err
		}
		if out, err = r.decodeSections(data, c.ID, start, end, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Values returns one value per base of [start, end). Bases without data
// are NaN.
func (r *Reader) Values(chrom string, start, end int) ([]float32, error) {
	ivs, err := r.Intervals(chrom, start, end)
	if err != nil {
		return nil, err
	}
	vals := make([]float32, end-start)
	nan := float32(math.NaN())
	for i := range vals {
		vals[i] = nan
	}
	for _, iv := range ivs {
		s, e := iv.Start, iv.End
		if s < start {
			s = start
		}
		if e > end {
			e = end
		}
		for p := s; p < e; p++ {
			vals[p-start] = iv.Value
		}
	}
	return vals, nil
}
