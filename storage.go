package contourtree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// File suffixes of the on-disk layout. All binary data is densely packed in
// native byte order.
const (
	treeHeaderSuffix  = ".rg.dat"
	treeDataSuffix    = ".rg.bin"
	partitionSuffix   = ".part.raw"
	orderHeaderSuffix = ".order.dat"
	orderDataSuffix   = ".order.bin"
)

// Bytes per entry of each binary array.
const (
	nodeRecordSize = 8 + 4 + 1 // id, value, type
	arcRecordSize  = 2 * 8
	orderEntrySize = 4 + 4 // order, weight
	arcMapSize     = 4
)

// WriteTree writes the node and arc arrays of t to <name>.rg.dat and
// <name>.rg.bin.
func WriteTree(name string, t *Tree) error {
	if err := checkTree(t, false); err != nil {
		return fmt.Errorf("contourtree: write tree: %w", err)
	}
	if err := writeHeader(name+treeHeaderSuffix, t.NodeCount(), t.ArcCount()); err != nil {
		return err
	}
	return writeBinary(name+treeDataSuffix, t.NodeIDs, t.NodeFns, t.NodeTypes, t.Arcs)
}

// ReadTree reads a tree written by WriteTree. The returned tree has no
// ArcMap; use ReadPartition for the segmentation.
func ReadTree(name string) (*Tree, error) {
	counts, err := readHeader(name+treeHeaderSuffix, 2)
	if err != nil {
		return nil, err
	}
	nodes, arcs := counts[0], counts[1]
	if err := checkSize(name+treeDataSuffix, int64(nodes)*nodeRecordSize, int64(arcs)*arcRecordSize); err != nil {
		return nil, err
	}
	t := &Tree{
		NodeIDs:   make([]int64, nodes),
		NodeFns:   make([]float32, nodes),
		NodeTypes: make([]CriticalType, nodes),
		Arcs:      make([][2]int64, arcs),
	}
	if err := readBinary(name+treeDataSuffix, t.NodeIDs, t.NodeFns, t.NodeTypes, t.Arcs); err != nil {
		return nil, err
	}
	if err := checkTree(t, false); err != nil {
		return nil, fmt.Errorf("contourtree: read tree %s: %w", name, err)
	}
	return t, nil
}

// WritePartition writes the per-vertex arc map to <name>.part.raw.
func WritePartition(name string, arcMap []uint32) error {
	return writeBinary(name+partitionSuffix, arcMap)
}

// ReadPartition reads an arc map of vertexCount entries written by
// WritePartition. vertexCount includes any virtual vertices.
func ReadPartition(name string, vertexCount int) ([]uint32, error) {
	if vertexCount < 0 || vertexCount > maxCount {
		return nil, fmt.Errorf("contourtree: read partition: vertex count %d out of range: %w", vertexCount, ErrPrecondition)
	}
	if err := checkSize(name+partitionSuffix, int64(vertexCount)*arcMapSize); err != nil {
		return nil, err
	}
	arcMap := make([]uint32, vertexCount)
	if err := readBinary(name+partitionSuffix, arcMap); err != nil {
		return nil, err
	}
	return arcMap, nil
}

// WriteOrder writes a branch order and its weights to <name>.order.dat and
// <name>.order.bin.
func WriteOrder(name string, order []uint32, weights []float32) error {
	if len(order) != len(weights) {
		return fmt.Errorf("contourtree: write order: %d entries but %d weights: %w", len(order), len(weights), ErrPrecondition)
	}
	if err := writeHeader(name+orderHeaderSuffix, len(order)); err != nil {
		return err
	}
	return writeBinary(name+orderDataSuffix, order, weights)
}

// ReadOrder reads an order and weights written by WriteOrder.
func ReadOrder(name string) ([]uint32, []float32, error) {
	counts, err := readHeader(name+orderHeaderSuffix, 1)
	if err != nil {
		return nil, nil, err
	}
	if err := checkSize(name+orderDataSuffix, int64(counts[0])*orderEntrySize); err != nil {
		return nil, nil, err
	}
	order := make([]uint32, counts[0])
	weights := make([]float32, counts[0])
	if err := readBinary(name+orderDataSuffix, order, weights); err != nil {
		return nil, nil, err
	}
	return order, weights, nil
}

// writeHeader writes one count per line.
func writeHeader(path string, counts ...int) error {
	var sb strings.Builder
	for _, c := range counts {
		sb.WriteString(strconv.Itoa(c))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("contourtree: write %s: %v: %w", path, err, ErrIO)
	}
	return nil
}

// maxCount bounds every count read from a header.
const maxCount = math.MaxInt32

// readHeader reads want non-negative counts, one per line.
func readHeader(path string, want int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("contourtree: read %s: %v: %w", path, err, ErrIO)
	}
	defer f.Close()

	counts := make([]int, 0, want)
	sc := bufio.NewScanner(f)
	for len(counts) < want && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		c, err := strconv.Atoi(line)
		if err != nil || c < 0 || c > maxCount {
			return nil, fmt.Errorf("contourtree: read %s: bad count %q: %w", path, line, ErrIO)
		}
		counts = append(counts, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("contourtree: read %s: %v: %w", path, err, ErrIO)
	}
	if len(counts) < want {
		return nil, fmt.Errorf("contourtree: read %s: expected %d counts, found %d: %w", path, want, len(counts), ErrIO)
	}
	return counts, nil
}

// checkSize fails unless path holds at least the sum of sizes bytes.
func checkSize(path string, sizes ...int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("contourtree: read %s: %v: %w", path, err, ErrIO)
	}
	var want int64
	for _, n := range sizes {
		want += n
	}
	if info.Size() < want {
		return fmt.Errorf("contourtree: read %s: file truncated: %d bytes, header needs %d: %w", path, info.Size(), want, ErrIO)
	}
	return nil
}

// writeBinary writes each of data back to back in native byte order.
func writeBinary(path string, data ...any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("contourtree: write %s: %v: %w", path, err, ErrIO)
	}
	w := bufio.NewWriter(f)
	for _, d := range data {
		if err := binary.Write(w, binary.NativeEndian, d); err != nil {
			f.Close()
			return fmt.Errorf("contourtree: write %s: %v: %w", path, err, ErrIO)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("contourtree: write %s: %v: %w", path, err, ErrIO)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("contourtree: write %s: %v: %w", path, err, ErrIO)
	}
	return nil
}

// readBinary fills each of data in turn. A file shorter than the data is
// an error.
func readBinary(path string, data ...any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("contourtree: read %s: %v: %w", path, err, ErrIO)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for _, d := range data {
		if err := binary.Read(r, binary.NativeEndian, d); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return fmt.Errorf("contourtree: read %s: file truncated: %w", path, ErrIO)
			}
			return fmt.Errorf("contourtree: read %s: %v: %w", path, err, ErrIO)
		}
	}
	return nil
}
