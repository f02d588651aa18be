package core

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	bpf "github.com/aquasecurity/libbpfgo"
	"github.com/pkg/errors"

	"github.com/Gthulhu/scx_netland/models"
)

// DequeueTask takes one task from the queued ring buffer without blocking.
func (s *Sched) DequeueTask() (*models.QueuedTask, error) {
	select {
	case b := <-s.queue:
		task, err := models.DecodeQueuedTask(b)
		if err != nil {
			return nil, err
		}
		if err := s.SubNrQueued(); err != nil {
			s.log.Warn().Err(err).Int32("pid", task.Pid).Msg("nr_queued not updated")
		}
		return task, nil
	default:
		return nil, nil
	}
}

// DispatchTask hands t to the kernel. It never blocks: a full ring buffer yields ErrDispatchBusy.
func (s *Sched) DispatchTask(t *models.DispatchedTask) error {
	b, err := models.EncodeDispatchedTask(t)
	if err != nil {
		return err
	}
	select {
	case s.dispatch <- b:
		return nil
	default:
		return ErrDispatchBusy
	}
}

type taskCpuArg struct {
	Pid   int32
	Cpu   int32
	Flags uint64
}

func runProg(prog *bpf.BPFProg, arg any) (uint32, error) {
	var data bytes.Buffer
	if err := binary.Write(&data, binary.LittleEndian, arg); err != nil {
		return 0, errors.Wrap(err, "encode prog argument")
	}
	opt := bpf.RunOpts{
		CtxIn:     data.Bytes(),
		CtxSizeIn: uint32(data.Len()),
	}
	if err := prog.Run(&opt); err != nil {
		return 0, err
	}
	return opt.RetVal, nil
}

// SelectIdleCPU asks the BPF side for an idle CPU. ok is false when none was found.
func (s *Sched) SelectIdleCPU(pid int32, prevCpu int32, flags uint64) (int32, bool) {
	if s.selectCpu == nil {
		return 0, false
	}
	ret, err := runProg(s.selectCpu, &taskCpuArg{Pid: pid, Cpu: prevCpu, Flags: flags})
	if err != nil {
		s.log.Debug().Err(err).Int32("pid", pid).Msg("rs_select_cpu failed")
		return 0, false
	}
	return retToCPU(ret)
}

func retToCPU(ret uint32) (int32, bool) {
	if ret > math.MaxInt32 {
		return 0, false
	}
	return int32(ret), true
}

type domainArg struct {
	LvlId        int32
	CpuId        int32
	SiblingCpuId int32
}

func (s *Sched) EnableSiblingCpu(lvlId, cpuId, siblingCpuId int32) error {
	if s.siblingCpu == nil {
		return errors.Wrap(ErrProgNotFound, "enable_sibling_cpu")
	}
	ret, err := runProg(s.siblingCpu, &domainArg{LvlId: lvlId, CpuId: cpuId, SiblingCpuId: siblingCpuId})
	if err != nil {
		return err
	}
	if ret != 0 {
		return errors.Errorf("enable_sibling_cpu returned %d", int32(ret))
	}
	return nil
}

// IsSMTActive reads smt/active under cpuDir.
func IsSMTActive(cpuDir string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(cpuDir, "smt", "active"))
	if err != nil {
		return false, err
	}
	smtActive, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, errors.Wrap(err, "parse smt/active")
	}
	return smtActive == 1, nil
}
