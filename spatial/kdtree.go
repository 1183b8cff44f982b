// Package spatial provides a kd-tree index for fixed-radius neighbor queries
// over particle positions.
package spatial

import "math"

// DistInf marks a squared distance that was not actually measured by the
// query. Callers receiving DistInf must recompute the distance themselves
// before using it.
const DistInf = math.MaxFloat64

// Hit is a query result: a candidate point and its squared distance from the
// query origin.
type Hit struct {
	Index  int     // index of the point in the build ordering
	DistSq float64 // squared distance, or DistInf in candidate mode
}

// leafSizeDefault is used when Build is given a non-positive leaf size.
const leafSizeDefault = 8

// node is one kd-tree node in the arena. A leaf holds a range of the shared
// index slice; an internal node holds a split plane and two child indices.
type node struct {
	start, end int // leaf: range into Tree.indices; internal: start == end
	splitDim   int
	splitVal   float64
	left       int
	right      int
}

// Tree is an immutable kd-tree over a snapshot of positions. It is bound to
// the positions at the time of Build: mutating the source positions
// invalidates the tree and the caller must rebuild before querying again.
type Tree struct {
	points   [][3]float64
	indices  []int
	nodes    []node
	leafSize int
}

// Build constructs a kd-tree over the given points. The point slice is
// retained, not copied.
func Build(points [][3]float64, leafSize int) *Tree {
	if leafSize < 1 {
		leafSize = leafSizeDefault
	}
	t := &Tree{
		points:   points,
		indices:  make([]int, len(points)),
		nodes:    make([]node, 0, 2*len(points)/leafSize+1),
		leafSize: leafSize,
	}
	for i := range t.indices {
		t.indices[i] = i
	}
	if len(points) > 0 {
		t.build(0, len(points))
	}
	return t
}

// Len returns the number of indexed points.
func (t *Tree) Len() int {
	return len(t.points)
}

// build recursively constructs the subtree over indices[start:end] and
// returns its node index in the arena.
func (t *Tree) build(start, end int) int {
	self := len(t.nodes)
	t.nodes = append(t.nodes, node{})

	if end-start <= t.leafSize {
		t.nodes[self] = node{start: start, end: end, left: -1, right: -1}
		return self
	}

	// Split on the dimension with the greatest spread.
	var lo, hi [3]float64
	for d := 0; d < 3; d++ {
		lo[d] = math.Inf(1)
		hi[d] = math.Inf(-1)
	}
	for _, idx := range t.indices[start:end] {
		p := &t.points[idx]
		for d := 0; d < 3; d++ {
			if p[d] < lo[d] {
				lo[d] = p[d]
			}
			if p[d] > hi[d] {
				hi[d] = p[d]
			}
		}
	}
	splitDim := 0
	maxSpread := hi[0] - lo[0]
	for d := 1; d < 3; d++ {
		if spread := hi[d] - lo[d]; spread > maxSpread {
			maxSpread = spread
			splitDim = d
		}
	}

	mid := (start + end) / 2
	t.quickSelect(start, end-1, mid, splitDim)
	splitVal := t.points[t.indices[mid]][splitDim]

	left := t.build(start, mid)
	right := t.build(mid, end)
	t.nodes[self] = node{start: start, end: start, splitDim: splitDim, splitVal: splitVal, left: left, right: right}
	return self
}

// quickSelect partially sorts indices[left:right+1] so that position k holds
// the k-th point along splitDim. O(n) average.
func (t *Tree) quickSelect(left, right, k, splitDim int) {
	for left < right {
		pivot := t.partition(left, right, left+(right-left)/2, splitDim)
		switch {
		case k == pivot:
			return
		case k < pivot:
			right = pivot - 1
		default:
			left = pivot + 1
		}
	}
}

func (t *Tree) partition(left, right, pivotIndex, splitDim int) int {
	idx := t.indices
	pivotValue := t.points[idx[pivotIndex]][splitDim]
	idx[pivotIndex], idx[right] = idx[right], idx[pivotIndex]

	store := left
	for i := left; i < right; i++ {
		if t.points[idx[i]][splitDim] < pivotValue {
			idx[store], idx[i] = idx[i], idx[store]
			store++
		}
	}
	idx[right], idx[store] = idx[store], idx[right]
	return store
}

// QueryRadiusInto finds all points within radius of q, excluding the point
// with index exclude (pass -1 to keep everything), and appends them to dst
// with exact squared distances. Returns the updated slice. Reuse dst across
// calls to avoid allocations.
func (t *Tree) QueryRadiusInto(dst []Hit, q [3]float64, radius float64, exclude int) []Hit {
	if len(t.points) == 0 {
		return dst
	}
	return t.query(dst, 0, q, radius*radius, exclude)
}

func (t *Tree) query(dst []Hit, n int, q [3]float64, radiusSq float64, exclude int) []Hit {
	nd := &t.nodes[n]
	if nd.left < 0 {
		for _, idx := range t.indices[nd.start:nd.end] {
			if idx == exclude {
				continue
			}
			p := &t.points[idx]
			dx := p[0] - q[0]
			dy := p[1] - q[1]
			dz := p[2] - q[2]
			distSq := dx*dx + dy*dy + dz*dz
			if distSq <= radiusSq {
				dst = append(dst, Hit{Index: idx, DistSq: distSq})
			}
		}
		return dst
	}

	d := q[nd.splitDim] - nd.splitVal
	near, far := nd.left, nd.right
	if d >= 0 {
		near, far = nd.right, nd.left
	}
	dst = t.query(dst, near, q, radiusSq, exclude)
	if d*d <= radiusSq {
		dst = t.query(dst, far, q, radiusSq, exclude)
	}
	return dst
}

// CandidatesInto is the approximate query mode: it appends every indexed
// point (except exclude) with DistSq set to DistInf, leaving the radius
// filtering and exact distances to the caller.
func (t *Tree) CandidatesInto(dst []Hit, exclude int) []Hit {
	for i := range t.points {
		if i == exclude {
			continue
		}
		dst = append(dst, Hit{Index: i, DistSq: DistInf})
	}
	return dst
}
