package engine

import "github.com/Gthulhu/scx_netland/models"

// Key is the scheduling order of a pooled task: deadline, then arrival, then pid.
type Key struct {
	Deadline  uint64
	Timestamp uint64
	Pid       int32
}

// Compare returns -1, 0 or +1 as k sorts before, equal to or after o.
func (k Key) Compare(o Key) int {
	switch {
	case k.Deadline != o.Deadline:
		if k.Deadline < o.Deadline {
			return -1
		}
		return 1
	case k.Timestamp != o.Timestamp:
		if k.Timestamp < o.Timestamp {
			return -1
		}
		return 1
	case k.Pid != o.Pid:
		if k.Pid < o.Pid {
			return -1
		}
		return 1
	}
	return 0
}

func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

// ScheduledTask is a scored task waiting in the pool.
type ScheduledTask struct {
	Task      models.QueuedTask
	Deadline  uint64
	Timestamp uint64
}

func (t *ScheduledTask) Key() Key {
	return Key{Deadline: t.Deadline, Timestamp: t.Timestamp, Pid: t.Task.Pid}
}

// TaskPool is a binary min-heap of ScheduledTask ordered by Key, holding at most one entry
// per pid. It is not safe for concurrent use.
type TaskPool struct {
	heap []ScheduledTask
	pos  map[int32]int
}

func NewTaskPool() *TaskPool {
	return &TaskPool{
		heap: make([]ScheduledTask, 0, 64),
		pos:  make(map[int32]int),
	}
}

func (p *TaskPool) Len() int {
	return len(p.heap)
}

func (p *TaskPool) Contains(pid int32) bool {
	_, ok := p.pos[pid]
	return ok
}

// Insert adds t to the pool. If the pid already has an entry it is overwritten and
// replaced is true.
func (p *TaskPool) Insert(t ScheduledTask) (replaced bool) {
	if idx, ok := p.pos[t.Task.Pid]; ok {
		p.heap[idx] = t
		p.fix(idx)
		return true
	}
	p.heap = append(p.heap, t)
	idx := len(p.heap) - 1
	p.pos[t.Task.Pid] = idx
	p.siftUp(idx)
	return false
}

// Peek returns the minimum entry without removing it.
func (p *TaskPool) Peek() (ScheduledTask, bool) {
	if len(p.heap) == 0 {
		return ScheduledTask{}, false
	}
	return p.heap[0], true
}

// PopMin removes and returns the minimum entry.
func (p *TaskPool) PopMin() (ScheduledTask, bool) {
	n := len(p.heap)
	if n == 0 {
		return ScheduledTask{}, false
	}
	top := p.heap[0]
	p.swap(0, n-1)
	p.heap = p.heap[:n-1]
	delete(p.pos, top.Task.Pid)
	if len(p.heap) > 0 {
		p.siftDown(0)
	}
	return top, true
}

// Drain empties the pool and returns the number of discarded entries.
func (p *TaskPool) Drain() int {
	n := len(p.heap)
	p.heap = p.heap[:0]
	clear(p.pos)
	return n
}

func (p *TaskPool) less(i, j int) bool {
	return p.heap[i].Key().Less(p.heap[j].Key())
}

func (p *TaskPool) swap(i, j int) {
	p.heap[i], p.heap[j] = p.heap[j], p.heap[i]
	p.pos[p.heap[i].Task.Pid] = i
	p.pos[p.heap[j].Task.Pid] = j
}

func (p *TaskPool) fix(idx int) {
	if !p.siftDown(idx) {
		p.siftUp(idx)
	}
}

func (p *TaskPool) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if !p.less(idx, parent) {
			break
		}
		p.swap(idx, parent)
		idx = parent
	}
}

// siftDown reports whether the element moved.
func (p *TaskPool) siftDown(idx int) bool {
	start := idx
	n := len(p.heap)
	for {
		left := 2*idx + 1
		if left >= n {
			break
		}
		smallest := left
		if right := left + 1; right < n && p.less(right, left) {
			smallest = right
		}
		if !p.less(smallest, idx) {
			break
		}
		p.swap(idx, smallest)
		idx = smallest
	}
	return idx > start
}
