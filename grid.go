package contourtree

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/chewxy/math32"
)

// gridStencil lists the neighbour offsets of a vertex in the six-tetrahedra
// (Freudenthal) decomposition of each grid cell: every non-zero vector of
// {0,1}^3 and its negation.
var gridStencil = [14][3]int{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
	{1, 1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, -1},
	{1, 1, 1}, {-1, -1, -1},
}

// Grid is a ScalarFunction over a structured 3D grid stored x-fastest.
// 2D fields use a depth of 1.
type Grid struct {
	dims   [3]int
	values []float32
}

// NewGrid wraps values sampled on a dims[0] x dims[1] x dims[2] grid.
// values is indexed x + dims[0]*(y + dims[1]*z). NaN samples are rejected
// because they break the total order.
func NewGrid(dims [3]int, values []float32) (*Grid, error) {
	n := 1
	for i, d := range dims {
		if d < 1 {
			return nil, fmt.Errorf("contourtree: grid dimension %d must be >= 1, got %d: %w", i, d, ErrPrecondition)
		}
		n *= d
	}
	if len(values) != n {
		return nil, fmt.Errorf("contourtree: grid of %dx%dx%d needs %d values, got %d: %w",
			dims[0], dims[1], dims[2], n, len(values), ErrPrecondition)
	}
	for i, v := range values {
		if math32.IsNaN(v) {
			return nil, fmt.Errorf("contourtree: grid value %d is NaN: %w", i, ErrPrecondition)
		}
	}
	return &Grid{dims: dims, values: values}, nil
}

// Dims returns the grid dimensions.
func (g *Grid) Dims() [3]int { return g.dims }

func (g *Grid) VertexCount() int { return len(g.values) }

func (g *Grid) MaxDegree() int { return len(gridStencil) }

func (g *Grid) Star(v int, out []int) int {
	nx, ny, nz := g.dims[0], g.dims[1], g.dims[2]
	x := v % nx
	y := (v / nx) % ny
	z := v / (nx * ny)

	ct := 0
	for _, off := range gridStencil {
		xx, yy, zz := x+off[0], y+off[1], z+off[2]
		if xx < 0 || yy < 0 || zz < 0 || xx >= nx || yy >= ny || zz >= nz {
			continue
		}
		out[ct] = xx + nx*(yy+ny*zz)
		ct++
	}
	return ct
}

func (g *Grid) LessThan(v1, v2 int) bool { return lessByValue(g.values, v1, v2) }

func (g *Grid) Value(v int) float32 { return g.values[v] }

// SampleType is the element type of a raw volume file.
type SampleType int

const (
	SampleUint8 SampleType = iota
	SampleUint16
	SampleFloat32
	SampleFloat64
)

var sampleNames = [...]string{"uint8", "uint16", "float32", "float64"}
var sampleSizes = [...]int{1, 2, 4, 8}

func (s SampleType) String() string {
	if s < 0 || int(s) >= len(sampleNames) {
		return fmt.Sprintf("SampleType(%d)", int(s))
	}
	return sampleNames[s]
}

// ParseSampleType converts a name such as "float32" into a SampleType.
func ParseSampleType(name string) (SampleType, error) {
	for i, n := range sampleNames {
		if n == name {
			return SampleType(i), nil
		}
	}
	return 0, fmt.Errorf("contourtree: unknown sample type %q: %w", name, ErrPrecondition)
}

// ReadRawGrid loads a headerless volume of dims samples stored x-fastest in
// native byte order and wraps it in a Grid.
func ReadRawGrid(path string, dims [3]int, typ SampleType) (*Grid, error) {
	if typ < 0 || int(typ) >= len(sampleSizes) {
		return nil, fmt.Errorf("contourtree: read raw grid: %v: %w", typ, ErrPrecondition)
	}
	n := dims[0] * dims[1] * dims[2]
	if n <= 0 {
		return nil, fmt.Errorf("contourtree: read raw grid: bad dimensions %v: %w", dims, ErrPrecondition)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contourtree: read raw grid %s: %v: %w", path, err, ErrIO)
	}
	size := sampleSizes[typ]
	if len(buf) < n*size {
		return nil, fmt.Errorf("contourtree: read raw grid %s: %d bytes, need %d: %w", path, len(buf), n*size, ErrIO)
	}

	values := make([]float32, n)
	for i := range values {
		b := buf[i*size:]
		switch typ {
		case SampleUint8:
			values[i] = float32(b[0])
		case SampleUint16:
			values[i] = float32(binary.NativeEndian.Uint16(b))
		case SampleFloat32:
			values[i] = math.Float32frombits(binary.NativeEndian.Uint32(b))
		case SampleFloat64:
			values[i] = float32(math.Float64frombits(binary.NativeEndian.Uint64(b)))
		}
	}
	return NewGrid(dims, values)
}
