package contourtree

import "fmt"

// Names accepted by NewSimFunction and Config.SimFunction.
const (
	SimPersistence = "persistence"
	SimHyperVolume = "hypervolume"
)

// SimFunction measures the significance of branches during simplification.
// The weight cache is a slice owned by the Simplification and handed over in
// Init; implementations read and write it by branch id.
type SimFunction interface {
	// Init computes the weight of every branch into fn and keeps fn as the
	// cache for later calls.
	Init(fn []float32, branches []Branch)

	// Update recomputes the weight of branch id after its shape changed.
	Update(branches []Branch, id int)

	// BranchRemoved is called when branch id was absorbed into its parent.
	// Implementations mark branches whose cached weight went stale in invalid.
	BranchRemoved(branches []Branch, id int, invalid []bool)

	// BranchWeight returns the cached weight of branch id.
	BranchWeight(id int) float32
}

// NewSimFunction returns the SimFunction with the given name. arcMap is only
// used by "hypervolume".
func NewSimFunction(name string, data *TreeData, arcMap []uint32) (SimFunction, error) {
	switch name {
	case SimPersistence:
		return NewPersistence(data), nil
	case SimHyperVolume:
		return NewHyperVolume(data, arcMap)
	default:
		return nil, fmt.Errorf("contourtree: unknown simplification function %q: %w", name, ErrPrecondition)
	}
}

// Persistence weighs a branch by the normalised function range it spans.
type Persistence struct {
	fnVals []float32
	fn     []float32
}

// NewPersistence returns a Persistence measure over data.
func NewPersistence(data *TreeData) *Persistence {
	return &Persistence{fnVals: data.FnVals}
}

func (p *Persistence) Init(fn []float32, branches []Branch) {
	p.fn = fn
	for i := range branches {
		p.Update(branches, i)
	}
}

func (p *Persistence) Update(branches []Branch, id int) {
	br := branches[id]
	p.fn[id] = p.fnVals[br.To] - p.fnVals[br.From]
}

// BranchRemoved is a no-op: the persistence of a branch depends only on its
// own endpoints.
func (p *Persistence) BranchRemoved(branches []Branch, id int, invalid []bool) {}

func (p *Persistence) BranchWeight(id int) float32 { return p.fn[id] }

// HyperVolume weighs a branch by the number of vertices on its arcs plus
// the weights of every branch it absorbed.
type HyperVolume struct {
	vol []float32
	fn  []float32
}

// NewHyperVolume counts the vertices mapped to each arc of data.
func NewHyperVolume(data *TreeData, arcMap []uint32) (*HyperVolume, error) {
	vol := make([]float32, data.ArcCount())
	for v, a := range arcMap {
		if int(a) >= len(vol) {
			return nil, fmt.Errorf("contourtree: hypervolume: vertex %d mapped to arc %d of %d: %w",
				v, a, len(vol), ErrPrecondition)
		}
		vol[a]++
	}
	return &HyperVolume{vol: vol}, nil
}

func (h *HyperVolume) Init(fn []float32, branches []Branch) {
	h.fn = fn
	for i := range branches {
		h.Update(branches, i)
	}
}

func (h *HyperVolume) Update(branches []Branch, id int) {
	br := branches[id]
	var w float32
	for _, a := range br.Arcs {
		w += h.vol[a]
	}
	for _, c := range br.Children {
		w += h.fn[c]
	}
	h.fn[id] = w
}

// BranchRemoved marks the absorbing branch stale: its volume now includes
// the removed branch.
func (h *HyperVolume) BranchRemoved(branches []Branch, id int, invalid []bool) {
	if p := branches[id].Parent; p >= 0 {
		invalid[p] = true
	}
}

func (h *HyperVolume) BranchWeight(id int) float32 { return h.fn[id] }
