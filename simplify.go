package contourtree

import (
	"cmp"
	"container/heap"
	"context"
	"fmt"
	"slices"
)

// Branch is a monotone path through the contour tree made of one or more
// arcs. Branches start as single arcs and grow as simplification merges them.
type Branch struct {
	// From is the lower node, To the higher node.
	From, To int

	// Arcs lists the contour tree arcs the branch currently covers.
	Arcs []int

	// Parent is the branch this one was absorbed into or pruned from, or -1
	// while the branch is a root of the decomposition.
	Parent int

	// Children lists the branches pruned from this one.
	Children []int
}

// Simplification builds the branch decomposition of a contour tree by
// repeatedly pruning the least significant leaf branch. A Simplification is
// not safe for concurrent use.
type Simplification struct {
	data     *TreeData
	branches []Branch

	// next[node] and prev[node] list the live branches leaving node upward
	// and arriving at node from below.
	next [][]int
	prev [][]int

	// pending[node] holds pruned branches waiting for node to be merged away;
	// they become children of the branch that survives the merge, or of the
	// last branch at node if that one is pruned instead.
	pending [][]int

	fn      []float32
	removed []bool
	invalid []bool
	inq     []bool

	queue branchQueue
	order []uint32
	simFn SimFunction
}

// NewSimplification prepares a simplification of data with one branch per
// arc.
func NewSimplification(data *TreeData) *Simplification {
	s := &Simplification{data: data}
	s.reset()
	return s
}

// reset restores the initial one-branch-per-arc state.
func (s *Simplification) reset() {
	nodes, arcs := s.data.NodeCount(), s.data.ArcCount()
	s.branches = make([]Branch, arcs)
	s.next = make([][]int, nodes)
	s.prev = make([][]int, nodes)
	s.pending = make([][]int, nodes)
	for i, a := range s.data.Arcs {
		s.branches[i] = Branch{From: a[0], To: a[1], Arcs: []int{i}, Parent: -1}
		s.next[a[0]] = append(s.next[a[0]], i)
		s.prev[a[1]] = append(s.prev[a[1]], i)
	}
	s.fn = make([]float32, arcs)
	s.removed = make([]bool, arcs)
	s.invalid = make([]bool, arcs)
	s.inq = make([]bool, arcs)
	s.queue = s.queue[:0]
	s.order = make([]uint32, 0, arcs)
	s.simFn = nil
}

// Branches returns the current branches. The slice is owned by s.
func (s *Simplification) Branches() []Branch { return s.branches }

// Order returns the branch ids in removal order. After Simplify it holds
// every branch exactly once.
func (s *Simplification) Order() []uint32 { return s.order }

// Removed reports whether branch id has been pruned or absorbed.
func (s *Simplification) Removed(id int) bool { return s.removed[id] }

// Pending returns the pruned branches attached at node that have not been
// assigned a parent yet.
func (s *Simplification) Pending(node int) []int { return s.pending[node] }

// isCandidate reports whether branch id is a prunable leaf: one endpoint is
// a live extremum carrying only this branch, and the other endpoint keeps
// another branch on the same side after the removal.
func (s *Simplification) isCandidate(id int) bool {
	br := s.branches[id]
	if len(s.prev[br.From]) == 0 && len(s.next[br.From]) == 1 {
		return len(s.prev[br.To]) > 1
	}
	if len(s.next[br.To]) == 0 && len(s.prev[br.To]) == 1 {
		return len(s.next[br.From]) > 1
	}
	return false
}

// Simplify prunes leaf branches in order of increasing significance under
// simFn until no candidate remains, then appends the surviving branches.
func (s *Simplification) Simplify(ctx context.Context, simFn SimFunction) error {
	s.reset()
	s.simFn = simFn
	simFn.Init(s.fn, s.branches)

	for id := range s.branches {
		if s.isCandidate(id) {
			s.push(id)
		}
	}

	for step := 0; s.queue.Len() > 0; step++ {
		if step&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("contourtree: simplify: %w", err)
			}
		}
		id := heap.Pop(&s.queue).(queueItem).id
		s.inq[id] = false
		if s.removed[id] {
			continue
		}
		if s.invalid[id] {
			simFn.Update(s.branches, id)
			s.invalid[id] = false
			s.push(id)
			continue
		}
		if !s.isCandidate(id) {
			continue
		}
		if err := s.removeArc(id); err != nil {
			return fmt.Errorf("contourtree: simplify: %w", err)
		}
	}

	// Survivors go last, least significant first.
	var live []int
	for id := range s.branches {
		if s.removed[id] {
			continue
		}
		if s.invalid[id] {
			simFn.Update(s.branches, id)
			s.invalid[id] = false
		}
		live = append(live, id)
	}
	slices.SortFunc(live, func(a, b int) int { return s.key(a).compare(s.key(b)) })
	for _, id := range live {
		s.order = append(s.order, uint32(id))
	}
	return nil
}

// ComputeWeights returns the weight of every entry of Order at the time it
// was removed, divided by the largest of them so every weight lies in
// [0, 1]. The last entry is always 1; if no weight is positive all others
// are 0. Returns nil when no SimFunction was used.
func (s *Simplification) ComputeWeights() []float32 {
	if s.simFn == nil || len(s.order) == 0 {
		return nil
	}
	w := make([]float32, len(s.order))
	for i, id := range s.order {
		w[i] = s.simFn.BranchWeight(int(id))
	}
	if top := slices.Max(w); top <= 0 {
		clear(w)
	} else {
		for i := range w {
			w[i] /= top
		}
	}
	w[len(w)-1] = 1
	return w
}

// Replay reproduces a simplification level from a precomputed order
// without a SimFunction. It prunes branches in order, skipping entries
// already absorbed by an earlier merge, and stops after topk prunes
// (topk <= 0 means no limit), before the first pruned entry whose weight
// exceeds threshold, or at the first entry that is no longer prunable.
func (s *Simplification) Replay(order []uint32, weights []float32, topk int, threshold float32) error {
	if len(order) != len(s.branches) || len(weights) != len(order) {
		return fmt.Errorf("contourtree: replay: order of %d entries and %d weights for %d branches: %w",
			len(order), len(weights), len(s.branches), ErrPrecondition)
	}
	for _, id := range order {
		if int(id) >= len(s.branches) {
			return fmt.Errorf("contourtree: replay: branch %d out of range [0,%d): %w", id, len(s.branches), ErrPrecondition)
		}
	}
	s.reset()

	pruned := 0
	for i, id := range order {
		if s.removed[id] {
			continue
		}
		if topk > 0 && pruned >= topk {
			break
		}
		if weights[i] > threshold || !s.isCandidate(int(id)) {
			break
		}
		if err := s.removeArc(int(id)); err != nil {
			return fmt.Errorf("contourtree: replay: %w", err)
		}
		pruned++
	}
	return nil
}

// removeArc prunes leaf branch id from its saddle and merges the saddle
// away if it is left with one branch on each side.
func (s *Simplification) removeArc(id int) error {
	br := &s.branches[id]
	var v, leaf int
	switch {
	case len(s.prev[br.From]) == 0 && len(s.next[br.From]) == 1:
		v, leaf = br.To, br.From
		s.prev[v] = removeID(s.prev[v], id)
		s.next[leaf] = nil
	case len(s.next[br.To]) == 0 && len(s.prev[br.To]) == 1:
		v, leaf = br.From, br.To
		s.next[v] = removeID(s.next[v], id)
		s.prev[leaf] = nil
	default:
		return fmt.Errorf("branch %d (%d -> %d) is not a leaf: %w", id, br.From, br.To, ErrPrecondition)
	}

	// Branches still waiting at the cut-off extremum leave with it.
	for _, c := range s.pending[leaf] {
		s.branches[c].Parent = id
	}
	br.Children = append(br.Children, s.pending[leaf]...)
	s.pending[leaf] = nil

	s.removed[id] = true
	s.order = append(s.order, uint32(id))
	s.pending[v] = append(s.pending[v], id)

	if len(s.prev[v]) == 1 && len(s.next[v]) == 1 {
		s.mergeVertex(v)
		return nil
	}
	if s.simFn != nil {
		// v may now be an extremum of the one branch left on a side.
		for _, b := range slices.Concat(s.prev[v], s.next[v]) {
			if !s.inq[b] && s.isCandidate(b) {
				s.push(b)
			}
		}
	}
	return nil
}

// mergeVertex joins the branch arriving at v from below with the branch
// leaving v upward. The lower branch survives; the upper one is absorbed
// and recorded in the order right away.
func (s *Simplification) mergeVertex(v int) {
	keep, gone := s.prev[v][0], s.next[v][0]
	if s.simFn != nil && s.invalid[gone] {
		s.simFn.Update(s.branches, gone)
		s.invalid[gone] = false
	}

	k, g := &s.branches[keep], &s.branches[gone]
	k.To = g.To
	if i := slices.Index(s.prev[g.To], gone); i >= 0 {
		s.prev[g.To][i] = keep
	}
	s.prev[v], s.next[v] = nil, nil

	k.Arcs = append(k.Arcs, g.Arcs...)
	for _, c := range g.Children {
		s.branches[c].Parent = keep
	}
	k.Children = append(k.Children, g.Children...)
	for _, c := range s.pending[v] {
		s.branches[c].Parent = keep
	}
	k.Children = append(k.Children, s.pending[v]...)
	s.pending[v] = nil

	g.Parent = keep
	g.Children = nil
	s.removed[gone] = true
	s.order = append(s.order, uint32(gone))

	if s.simFn != nil {
		s.simFn.BranchRemoved(s.branches, gone, s.invalid)
		s.requeue(keep)
	}
}

// requeue schedules a live branch whose shape changed: a queued branch is
// marked stale, any other branch gets a fresh weight and is pushed.
func (s *Simplification) requeue(id int) {
	if s.removed[id] {
		return
	}
	if s.inq[id] {
		s.invalid[id] = true
		return
	}
	s.simFn.Update(s.branches, id)
	s.invalid[id] = false
	s.push(id)
}

func (s *Simplification) push(id int) {
	heap.Push(&s.queue, s.key(id))
	s.inq[id] = true
}

// key snapshots the queue ordering of branch id from its cached weight and
// current shape.
func (s *Simplification) key(id int) queueItem {
	br := s.branches[id]
	return queueItem{
		id:          id,
		weight:      s.fn[id],
		persistence: s.data.NodeFns[br.To] - s.data.NodeFns[br.From],
		span:        br.To - br.From,
		from:        br.From,
	}
}

// removeID deletes the first occurrence of id from list.
func removeID(list []int, id int) []int {
	if i := slices.Index(list, id); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

// --- min-heap of branches, least significant on top ---

// queueItem snapshots the ordering key of a branch when it is pushed, so
// later shape changes cannot break the heap invariant.
type queueItem struct {
	id          int
	weight      float32
	persistence float32
	span        int
	from        int
}

func (a queueItem) compare(b queueItem) int {
	switch {
	case a.weight != b.weight:
		return cmp.Compare(a.weight, b.weight)
	case a.persistence != b.persistence:
		return cmp.Compare(a.persistence, b.persistence)
	case a.span != b.span:
		return cmp.Compare(a.span, b.span)
	case a.from != b.from:
		return cmp.Compare(a.from, b.from)
	default:
		return cmp.Compare(a.id, b.id)
	}
}

type branchQueue []queueItem

func (h branchQueue) Len() int           { return len(h) }
func (h branchQueue) Less(i, j int) bool { return h[i].compare(h[j]) < 0 }
func (h branchQueue) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *branchQueue) Push(x any)        { *h = append(*h, x.(queueItem)) }
func (h *branchQueue) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
