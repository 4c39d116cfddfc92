package archive

import (
	"io"

	"github.com/meigma/arcguard/core"
)

// ratioGuardFloor is the amount of decompressed output tolerated before the
// running ratio is enforced, so small highly compressible archives pass.
const ratioGuardFloor = 1 << 20

// streamPath labels ratio failures that belong to the whole stream.
const streamPath = "(compressed stream)"

// countingReader counts bytes read from r.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ratioGuard enforces a maximum decompressed/compressed ratio over a whole
// compressed stream, covering formats that record no per-entry compressed
// size.
type ratioGuard struct {
	r          io.Reader
	compressed *countingReader
	out        int64
	max        float64
	err        error
}

func newRatioGuard(r io.Reader, compressed *countingReader, maxRatio float64) *ratioGuard {
	return &ratioGuard{r: r, compressed: compressed, max: maxRatio}
}

func (g *ratioGuard) Read(p []byte) (int, error) {
	if g.err != nil {
		return 0, g.err
	}
	n, err := g.r.Read(p)
	g.out += int64(n)
	if g.max > 0 && g.out > ratioGuardFloor {
		in := g.compressed.n
		if in < 1 {
			in = 1
		}
		ratio := float64(g.out) / float64(in)
		if ratio > g.max {
			g.err = &core.ZipBombError{
				Path:         streamPath,
				Compressed:   in,
				Uncompressed: g.out,
				Ratio:        ratio,
				Limit:        g.max,
			}
			return 0, g.err
		}
	}
	return n, err
}
