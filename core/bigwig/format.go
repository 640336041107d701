// Package bigwig reads and writes the indexed binary BigWig format.
//
// Layout (all offsets absolute):
//
//	header (64) | zoom headers | total summary (40) | chrom B+ tree |
//	data count + blocks | R-tree index | trailing magic
//
// Zoom levels are read past and never written.
package bigwig

import "errors"

const (
	Magic          uint32 = 0x888FFC26
	chromTreeMagic uint32 = 0x78CA8C91
	rTreeMagic     uint32 = 0x2468ACE0

	headerSize      = 64
	zoomHeaderSize  = 24
	summarySize     = 40
	chromTreeHeader = 32
	rTreeHeaderSize = 48
	nodeHeaderSize  = 4
	rLeafItemSize   = 32
	rInnerItemSize  = 24
	sectionHdrSize  = 24
)

// Section types as stored in each data block.
const (
	typeBedGraph     = 1
	typeVariableStep = 2
	typeFixedStep    = 3
)

var (
	ErrNotBigWig    = errors.New("bigwig: bad magic, not a BigWig file")
	ErrUnknownChrom = errors.New("bigwig: unknown chromosome")
)

// Chrom is an entry of the chromosome B+ tree.
type Chrom struct {
	Name string
	ID   uint32
	Size int
}

// Interval is a scored 0-based half-open range.
type Interval struct {
	Start, End int
	Value      float32
}

// Summary is the whole-file total summary block.
type Summary struct {
	BasesCovered uint64
	Min, Max     float64
	Sum          float64
	SumSquares   float64
}

// Mean of covered bases, 0 when nothing is covered.
func (s Summary) Mean() float64 {
	if s.BasesCovered == 0 {
		return 0
	}
	return s.Sum / float64(s.BasesCovered)
}

type header struct {
	Version            uint16
	ZoomLevels         uint16
	ChromTreeOffset    uint64
	FullDataOffset     uint64
	FullIndexOffset    uint64
	FieldCount         uint16
	DefinedFieldCount  uint16
	AutoSQLOffset      uint64
	TotalSummaryOffset uint64
	UncompressBufSize  uint32
	ExtensionOffset    uint64
}

// treeLayout gives the byte offset of every node of a bottom-up tree
// that groups n leaf items into nodes of at most fanout children. Level 0
// holds the leaves; the last level is the single root. Nodes are written
// root first, level by level, starting at base.
type treeLayout struct {
	fanout int
	n      int
	counts []int     // nodes per level
	nodes  [][]int64 // nodes[level][j] = offset
	end    int64
}

func layoutTree(n, fanout int, base int64, leafItem, innerItem int) treeLayout {
	if fanout < 2 {
		fanout = 2
	}
	t := treeLayout{fanout: fanout, n: n}
	items := n
	for {
		c := (items + fanout - 1) / fanout
		if c == 0 {
			c = 1
		}
		t.counts = append(t.counts, c)
		if c == 1 {
			break
		}
		items = c
	}
	// Root first: its size depends on the node count of the level below.
	t.nodes = make([][]int64, len(t.counts))
	off := base
	for lvl := len(t.counts) - 1; lvl >= 0; lvl-- {
		itemSize := innerItem
		if lvl == 0 {
			itemSize = leafItem
		}
		t.nodes[lvl] = make([]int64, t.counts[lvl])
		for j := range t.nodes[lvl] {
			t.nodes[lvl][j] = off
			off += int64(nodeHeaderSize + t.itemsIn(lvl, j)*itemSize)
		}
	}
	t.end = off
	return t
}

// itemCount is the number of items on a level: leaves on level 0,
// child nodes above.
func (t treeLayout) itemCount(lvl int) int {
	if lvl == 0 {
		return t.n
	}
	return t.counts[lvl-1]
}

func (t treeLayout) itemsIn(lvl, j int) int {
	lo := j * t.fanout
	hi := lo + t.fanout
	if c := t.itemCount(lvl); hi > c {
		hi = c
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}

// leafSpan returns the leaf range [lo, hi) under item g of level lvl.
func (t treeLayout) leafSpan(lvl, g int) (int, int) {
	if lvl == 0 {
		return g, g + 1
	}
	w := 1
	for i := 0; i < lvl; i++ {
		w *= t.fanout
	}
	lo, hi := g*w, (g+1)*w
	if hi > t.n {
		hi = t.n
	}
	return lo, hi
}
