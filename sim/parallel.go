package sim

import (
	"errors"
	"runtime"
	"sync"

	"github.com/pthm-cable/brine/spatial"
)

// parallelThreshold is the minimum particle count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	Hits []spatial.Hit
}

// workChunk represents a range of particles for a worker to process.
type workChunk struct {
	start, end int
}

// parallelState holds resources for the parallel neighbor rebuild. Each
// worker writes only the neighbor lists of its own chunk, so no locking is
// needed; the rebuild completes before any NSM stepping reads the lists.
type parallelState struct {
	scratches  []workerScratch
	errs       []error // first error per worker
	numWorkers int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState() *parallelState {
	numWorkers := runtime.GOMAXPROCS(0)
	scratches := make([]workerScratch, numWorkers)
	for i := range scratches {
		scratches[i].Hits = make([]spatial.Hit, 0, 64)
	}
	return &parallelState{
		numWorkers: numWorkers,
		scratches:  scratches,
		errs:       make([]error, numWorkers),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers(s *Simulation) {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(s, i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker(s *Simulation, workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			if err := s.rebuildChunk(chunk.start, chunk.end, scratch); err != nil && p.errs[workerID] == nil {
				p.errs[workerID] = err
			}
			p.doneChan <- struct{}{}
		}
	}
}

// rebuildChunk rebuilds the neighbor lists of particles [i0, i1).
func (s *Simulation) rebuildChunk(i0, i1 int, scratch *workerScratch) error {
	var err error
	for i := i0; i < i1; i++ {
		scratch.Hits, err = s.sys.FindNeighbors(i, scratch.Hits)
		if err != nil {
			return err
		}
	}
	return nil
}

// rebuildNeighbors rebuilds every particle's neighbor list, in parallel for
// large populations. The spatial index must be current.
func (s *Simulation) rebuildNeighbors() error {
	n := s.sys.Count()
	if n == 0 {
		return nil
	}
	if n < parallelThreshold {
		// Single-threaded for small populations
		return s.rebuildChunk(0, n, &s.parallel.scratches[0])
	}
	return s.rebuildParallel(n)
}

// rebuildParallel dispatches chunks to the worker pool and joins any errors.
func (s *Simulation) rebuildParallel(n int) error {
	p := s.parallel
	if !p.running {
		p.startWorkers(s)
	}
	for i := range p.errs {
		p.errs[i] = nil
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		p.workChan <- workChunk{start: start, end: end}
		chunksDispatched++
	}

	// Barrier: all chunks must complete before the lists are read.
	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}

	return errors.Join(p.errs...)
}
