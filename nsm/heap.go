// Package nsm implements the Next Subvolume Method: an event-time schedule
// over all particles/voxels and the stochastic stepping core that fires
// reaction and diffusion events in strict time order.
package nsm

import "math"

// record is one scheduled event in the arena: the voxel it belongs to and its
// absolute next-event time.
type record struct {
	voxel int
	time  float64
}

// Schedule is a binary min-heap of next-event times with one entry per active
// voxel. Records live in an arena addressed by integer handles; a voxel ->
// handle map supports decrease-key style updates in O(log n). Ordering is
// strictly ascending by time, with ties broken by lower voxel index so that
// trajectories are reproducible for a fixed seed.
type Schedule struct {
	records []record
	free    []int // recycled handles

	heap    []int       // handles in heap order
	pos     []int       // handle -> index in heap
	handles map[int]int // voxel -> handle
}

// NewSchedule creates an empty schedule with capacity hints for n voxels.
func NewSchedule(n int) *Schedule {
	return &Schedule{
		records: make([]record, 0, n),
		heap:    make([]int, 0, n),
		pos:     make([]int, 0, n),
		handles: make(map[int]int, n),
	}
}

// Len returns the number of scheduled entries.
func (s *Schedule) Len() int {
	return len(s.heap)
}

// Contains reports whether the voxel has a scheduled entry.
func (s *Schedule) Contains(voxel int) bool {
	_, ok := s.handles[voxel]
	return ok
}

// Time returns the scheduled time of a voxel, or +Inf if it has none.
func (s *Schedule) Time(voxel int) float64 {
	h, ok := s.handles[voxel]
	if !ok {
		return math.Inf(1)
	}
	return s.records[h].time
}

// Insert schedules a voxel at time t. The voxel must not already be
// scheduled; use Update to move an existing entry.
func (s *Schedule) Insert(voxel int, t float64) {
	if _, ok := s.handles[voxel]; ok {
		panic("nsm: voxel already scheduled")
	}
	var h int
	if n := len(s.free); n > 0 {
		h = s.free[n-1]
		s.free = s.free[:n-1]
		s.records[h] = record{voxel: voxel, time: t}
	} else {
		h = len(s.records)
		s.records = append(s.records, record{voxel: voxel, time: t})
		s.pos = append(s.pos, -1)
	}
	s.handles[voxel] = h
	s.pos[h] = len(s.heap)
	s.heap = append(s.heap, h)
	s.siftUp(len(s.heap) - 1)
}

// Min returns the voxel with the earliest scheduled time without removing it.
// Returns (-1, +Inf) when the schedule is empty.
func (s *Schedule) Min() (voxel int, t float64) {
	if len(s.heap) == 0 {
		return -1, math.Inf(1)
	}
	r := s.records[s.heap[0]]
	return r.voxel, r.time
}

// PopMin removes and returns the earliest entry. Returns (-1, +Inf) when the
// schedule is empty.
func (s *Schedule) PopMin() (voxel int, t float64) {
	if len(s.heap) == 0 {
		return -1, math.Inf(1)
	}
	h := s.heap[0]
	r := s.records[h]

	last := len(s.heap) - 1
	s.heap[0] = s.heap[last]
	s.pos[s.heap[0]] = 0
	s.heap = s.heap[:last]
	if last > 0 {
		s.siftDown(0)
	}

	delete(s.handles, r.voxel)
	s.pos[h] = -1
	s.free = append(s.free, h)
	return r.voxel, r.time
}

// Update reschedules a voxel to time t, restoring heap order in either
// direction.
func (s *Schedule) Update(voxel int, t float64) {
	h, ok := s.handles[voxel]
	if !ok {
		panic("nsm: update of unscheduled voxel")
	}
	s.records[h].time = t
	i := s.pos[h]
	if !s.siftUp(i) {
		s.siftDown(i)
	}
}

// less orders heap slots i, j: earlier time first, lower voxel index on ties.
func (s *Schedule) less(i, j int) bool {
	a, b := s.records[s.heap[i]], s.records[s.heap[j]]
	if a.time != b.time {
		return a.time < b.time
	}
	return a.voxel < b.voxel
}

func (s *Schedule) swap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.pos[s.heap[i]] = i
	s.pos[s.heap[j]] = j
}

func (s *Schedule) siftUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !s.less(i, parent) {
			break
		}
		s.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

func (s *Schedule) siftDown(i int) {
	n := len(s.heap)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && s.less(right, left) {
			smallest = right
		}
		if !s.less(smallest, i) {
			return
		}
		s.swap(i, smallest)
		i = smallest
	}
}
