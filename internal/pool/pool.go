// Package pool provides the per-thread free lists that hand out pose buffers
// and per-frame payloads to graph nodes.
package pool

import "github.com/AaronLay10/animgraph/internal/pose"

// PosePool is a free list of pose buffers. It is not safe for concurrent
// use; each worker thread owns its own pool.
type PosePool struct {
	free      []*pose.Pose
	numUsed   int
	maxUsed   int
	allocated int
}

// NewPosePool creates a pool with prealloc buffers of numJoints joints.
func NewPosePool(prealloc, numJoints int) *PosePool {
	p := &PosePool{}
	for i := 0; i < prealloc; i++ {
		p.free = append(p.free, pose.New(numJoints))
		p.allocated++
	}
	return p
}

// Request returns a buffer sized to numJoints. Its contents are unspecified.
func (p *PosePool) Request(numJoints int) *pose.Pose {
	var out *pose.Pose
	if n := len(p.free); n > 0 {
		out = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		if out.NumJoints() != numJoints {
			out.Resize(numJoints)
		}
	} else {
		out = pose.New(numJoints)
		p.allocated++
	}
	p.numUsed++
	if p.numUsed > p.maxUsed {
		p.maxUsed = p.numUsed
	}
	return out
}

// Free returns a buffer to the pool.
func (p *PosePool) Free(ps *pose.Pose) {
	if ps == nil {
		return
	}
	p.free = append(p.free, ps)
	p.numUsed--
}

// NumUsed returns the number of buffers currently handed out.
func (p *PosePool) NumUsed() int { return p.numUsed }

// NumFree returns the number of buffers waiting for reuse.
func (p *PosePool) NumFree() int { return len(p.free) }

// MaxUsed returns the high-water mark of NumUsed.
func (p *PosePool) MaxUsed() int { return p.maxUsed }

// NumAllocated returns the total number of buffers ever created.
func (p *PosePool) NumAllocated() int { return p.allocated }

// RefDataPool is a free list of RefData payloads. Like PosePool it belongs
// to a single worker thread.
type RefDataPool struct {
	free      []*RefData
	numUsed   int
	maxUsed   int
	allocated int
}

// NewRefDataPool creates a pool with prealloc payloads.
func NewRefDataPool(prealloc int) *RefDataPool {
	p := &RefDataPool{}
	for i := 0; i < prealloc; i++ {
		p.free = append(p.free, newRefData())
		p.allocated++
	}
	return p
}

// Request returns a reset payload.
func (p *RefDataPool) Request() *RefData {
	var out *RefData
	if n := len(p.free); n > 0 {
		out = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		out.Reset()
	} else {
		out = newRefData()
		p.allocated++
	}
	p.numUsed++
	if p.numUsed > p.maxUsed {
		p.maxUsed = p.numUsed
	}
	return out
}

// Free returns a payload to the pool.
func (p *RefDataPool) Free(d *RefData) {
	if d == nil {
		return
	}
	p.free = append(p.free, d)
	p.numUsed--
}

func (p *RefDataPool) NumUsed() int      { return p.numUsed }
func (p *RefDataPool) NumFree() int      { return len(p.free) }
func (p *RefDataPool) MaxUsed() int      { return p.maxUsed }
func (p *RefDataPool) NumAllocated() int { return p.allocated }

func newRefData() *RefData {
	d := &RefData{}
	d.Reset()
	return d
}

// ThreadPools bundles the pools owned by one worker thread.
type ThreadPools struct {
	Poses   *PosePool
	RefData *RefDataPool
}

// NewThreadPools creates the pools of one worker thread.
func NewThreadPools(prealloc, numJoints int) *ThreadPools {
	return &ThreadPools{
		Poses:   NewPosePool(prealloc, numJoints),
		RefData: NewRefDataPool(prealloc),
	}
}

// Partition holds one ThreadPools per worker-thread index.
type Partition struct {
	threads []*ThreadPools
}

// NewPartition creates pools for numThreads worker threads.
func NewPartition(numThreads, prealloc, numJoints int) *Partition {
	if numThreads < 1 {
		numThreads = 1
	}
	p := &Partition{threads: make([]*ThreadPools, numThreads)}
	for i := range p.threads {
		p.threads[i] = NewThreadPools(prealloc, numJoints)
	}
	return p
}

// NumThreads returns the number of partitions.
func (p *Partition) NumThreads() int {
	return len(p.threads)
}

// ForThread returns the pools of a worker thread. Indices outside the
// partition wrap around.
func (p *Partition) ForThread(index int) *ThreadPools {
	if index < 0 {
		index = -index
	}
	return p.threads[index%len(p.threads)]
}
