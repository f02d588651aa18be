package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	bpf "github.com/aquasecurity/libbpfgo"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Gthulhu/scx_netland/models"
)

// BssData mirrors the counters the BPF dispatcher keeps in .bss.
type BssData struct {
	Usersched_pid        uint32
	Paid                 uint32
	Nr_queued            uint64
	Nr_scheduled         uint64
	Nr_running           uint64
	Nr_online_cpus       uint64
	Nr_user_dispatches   uint64
	Nr_kernel_dispatches uint64
	Nr_cancel_dispatches uint64
	Nr_bounce_dispatches uint64
	Nr_failed_dispatches uint64
	Nr_sched_congested   uint64
}

func (data BssData) String() string {
	return fmt.Sprintf("usersched_pid: %v, nr_queued: %v, nr_scheduled: %v, nr_running: %v, "+
		"nr_online_cpus: %v, nr_user_dispatches: %v, nr_kernel_dispatches: %v, "+
		"nr_cancel_dispatches: %v, nr_bounce_dispatches: %v, nr_failed_dispatches: %v, nr_sched_congested: %v",
		data.Usersched_pid, data.Nr_queued, data.Nr_scheduled, data.Nr_running,
		data.Nr_online_cpus, data.Nr_user_dispatches, data.Nr_kernel_dispatches,
		data.Nr_cancel_dispatches, data.Nr_bounce_dispatches, data.Nr_failed_dispatches, data.Nr_sched_congested)
}

func (data BssData) Counters() models.Counters {
	return models.Counters{
		NrRunning:          data.Nr_running,
		NrOnlineCpus:       data.Nr_online_cpus,
		NrQueued:           data.Nr_queued,
		NrScheduled:        data.Nr_scheduled,
		NrUserDispatches:   data.Nr_user_dispatches,
		NrKernelDispatches: data.Nr_kernel_dispatches,
		NrCancelDispatches: data.Nr_cancel_dispatches,
		NrBounceDispatches: data.Nr_bounce_dispatches,
		NrFailedDispatches: data.Nr_failed_dispatches,
		NrSchedCongested:   data.Nr_sched_congested,
	}
}

func decodeBss(b []byte) (BssData, error) {
	var bss BssData
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &bss); err != nil {
		return BssData{}, errors.Wrap(err, "decode .bss")
	}
	return bss, nil
}

type BssMap struct {
	*bpf.BPFMap
}

func (s *Sched) GetBssData() (BssData, error) {
	if s.bss == nil {
		return BssData{}, ErrNotLoaded
	}
	i := 0
	b, err := s.bss.BPFMap.GetValue(unsafe.Pointer(&i))
	if err != nil {
		return BssData{}, errors.Wrap(err, "read .bss")
	}
	return decodeBss(b)
}

func (s *Sched) updateBss(mutate func(*BssData)) error {
	bss, err := s.GetBssData()
	if err != nil {
		return err
	}
	mutate(&bss)
	i := 0
	return s.bss.BPFMap.Update(unsafe.Pointer(&i), unsafe.Pointer(&bss))
}

// NotifyComplete publishes how many tasks are still pending user-side, then yields the CPU.
func (s *Sched) NotifyComplete(nrPending uint64) error {
	if err := s.updateBss(func(b *BssData) { b.Nr_scheduled = nrPending }); err != nil {
		return err
	}
	if _, _, errno := unix.Syscall(unix.SYS_SCHED_YIELD, 0, 0, 0); errno != 0 {
		return errors.Wrap(errno, "sched_yield")
	}
	return nil
}

func (s *Sched) NrQueued() uint64 {
	bss, err := s.GetBssData()
	if err != nil {
		return 0
	}
	return bss.Nr_queued
}

func (s *Sched) Counters() (models.Counters, error) {
	bss, err := s.GetBssData()
	if err != nil {
		return models.Counters{}, err
	}
	return bss.Counters(), nil
}

func (s *Sched) SubNrQueued() error {
	return s.updateBss(func(b *BssData) {
		if b.Nr_queued > 0 {
			b.Nr_queued--
		}
	})
}

func (s *Sched) AssignUserSchedPid(pid int) error {
	return s.updateBss(func(b *BssData) { b.Usersched_pid = uint32(pid) })
}
