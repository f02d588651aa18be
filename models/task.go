package models

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// RL_CPU_ANY lets the BPF dispatcher pick the first CPU available.
	RL_CPU_ANY = 1 << 20

	WEIGHT_MIN     = 1
	WEIGHT_MAX     = 10000
	WEIGHT_DEFAULT = 100
)

// Task queued for scheduling from the BPF component (see bpf_intf::queued_task_ctx).
type QueuedTask struct {
	Pid           int32  // pid that uniquely identifies a task
	Cpu           int32  // CPU previously used by the task
	NrCpusAllowed uint64 // Number of CPUs that the task can use
	Flags         uint64 // task enqueue flags
	StartTs       uint64 // Timestamp since last time the task ran on a CPU
	StopTs        uint64 // Timestamp since last time the task released a CPU
	ExecRuntime   uint64 // Total cpu time since last sleep
	Weight        uint64 // Task static priority
	Vtime         uint64 // Current vruntime
	EnqCnt        uint64 // enqueue generation counter (private)
}

// Task queued for dispatching to the BPF component (see bpf_intf::dispatched_task_ctx).
type DispatchedTask struct {
	Pid     int32  // pid that uniquely identifies a task
	Cpu     int32  // target CPU selected by the scheduler
	Flags   uint64 // special dispatch flags
	SliceNs uint64 // time slice assigned to the task (0 = default)
	Vtime   uint64 // task deadline / vruntime
	EnqCnt  uint64 // enqueue generation counter (private)
}

// NewDispatchedTask creates a DispatchedTask from a QueuedTask.
func NewDispatchedTask(task *QueuedTask) *DispatchedTask {
	return &DispatchedTask{
		Pid:     task.Pid,
		Cpu:     task.Cpu,
		Flags:   task.Flags,
		SliceNs: 0, // use default time slice
		Vtime:   0,
		EnqCnt:  task.EnqCnt,
	}
}

// QueuedTaskSize is the size in bytes of a queued_task_ctx record.
var QueuedTaskSize = binary.Size(QueuedTask{})

// DecodeQueuedTask decodes one queued_task_ctx record from the ring buffer.
func DecodeQueuedTask(b []byte) (*QueuedTask, error) {
	if len(b) < QueuedTaskSize {
		return nil, errors.Errorf("short queued task record: %d < %d bytes", len(b), QueuedTaskSize)
	}
	var task QueuedTask
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &task); err != nil {
		return nil, errors.Wrap(err, "decode queued task")
	}
	return &task, nil
}

// EncodeDispatchedTask encodes t as a dispatched_task_ctx record.
func EncodeDispatchedTask(t *DispatchedTask) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, t); err != nil {
		return nil, errors.Wrap(err, "encode dispatched task")
	}
	return buf.Bytes(), nil
}
