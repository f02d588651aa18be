package core

import (
	"context"
	"os"

	bpf "github.com/aquasecurity/libbpfgo"
	"github.com/cilium/ebpf/rlimit"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/Gthulhu/scx_netland/logger"
	"github.com/Gthulhu/scx_netland/util"
)

const (
	ringBufferDepth = 4096
	pollTimeoutMs   = 300
)

var (
	ErrNotLoaded     = errors.New("bpf object not loaded")
	ErrDispatchBusy  = errors.New("dispatch ring buffer full")
	ErrProgNotFound  = errors.New("bpf program not found")
	ErrStructOpsNone = errors.New("struct_ops map not found")
)

// Options controls how the BPF side of the scheduler is loaded.
type Options struct {
	ObjPath     string
	Partial     bool
	ExitDumpLen uint32
	Debug       bool
}

// Sched is one loaded and attached instance of the BPF dispatcher.
type Sched struct {
	log        zerolog.Logger
	mod        *bpf.Module
	bss        *BssMap
	uei        *UeiMap
	structOps  *bpf.BPFMap
	link       *bpf.BPFLink
	ringBuf    *bpf.RingBuffer
	queue      chan []byte // tasks queued to user space by the kernel
	dispatch   chan []byte // tasks handed back to the kernel
	selectCpu  *bpf.BPFProg
	siblingCpu *bpf.BPFProg
}

// Mlockall locks current and future pages of the process in memory.
func Mlockall() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

// LoadSched loads and attaches the BPF scheduler in opts.ObjPath.
// On error everything already acquired is released.
func LoadSched(ctx context.Context, opts Options) (_ *Sched, err error) {
	log := logger.Logger(ctx).With().Str("obj", opts.ObjPath).Logger()
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, errors.Wrap(err, "remove memlock rlimit")
	}

	bpfModule, err := bpf.NewModuleFromFileArgs(bpf.NewModuleArgs{
		BPFObjPath:     opts.ObjPath,
		KernelLogLevel: 0,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", opts.ObjPath)
	}
	s := &Sched{log: log, mod: bpfModule}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	smt, smtErr := IsSMTActive(util.SysCPUDir)
	if smtErr != nil {
		log.Debug().Err(smtErr).Msg("smt state unknown")
	}
	for name, val := range map[string]any{
		"switch_partial": opts.Partial,
		"debug":          opts.Debug,
		"smt_enabled":    smt,
		"exit_dump_len":  opts.ExitDumpLen,
	} {
		if err := bpfModule.InitGlobalVariable(name, val); err != nil {
			log.Warn().Err(err).Str("var", name).Msg("global variable not set")
		}
	}

	if err = bpfModule.BPFLoadObject(); err != nil {
		return nil, errors.Wrap(err, "load bpf object")
	}

	iters := bpfModule.Iterator()
	for {
		prog := iters.NextProgram()
		if prog == nil {
			break
		}
		switch prog.Name() {
		case "kprobe_handle_mm_fault", "kretprobe_handle_mm_fault":
			if _, err = prog.AttachGeneric(); err != nil {
				return nil, errors.Wrapf(err, "attach %s", prog.Name())
			}
			log.Debug().Str("prog", prog.Name()).Msg("attached")
		case "rs_select_cpu":
			s.selectCpu = prog
		case "enable_sibling_cpu":
			s.siblingCpu = prog
		}
	}

	iters = bpfModule.Iterator()
	for {
		m := iters.NextMap()
		if m == nil {
			break
		}
		switch m.Name() {
		case "main.bss":
			s.bss = &BssMap{m}
		case "main.data":
			s.uei = &UeiMap{m}
		case "queued":
			s.queue = make(chan []byte, ringBufferDepth)
			if s.ringBuf, err = bpfModule.InitRingBuf("queued", s.queue); err != nil {
				return nil, errors.Wrap(err, "init queued ring buffer")
			}
			s.ringBuf.Poll(pollTimeoutMs)
		case "dispatched":
			s.dispatch = make(chan []byte, ringBufferDepth)
			urb, uerr := bpfModule.InitUserRingBuf("dispatched", s.dispatch)
			if uerr != nil {
				return nil, errors.Wrap(uerr, "init dispatched user ring buffer")
			}
			urb.Start()
		}
		if m.Type().String() == "BPF_MAP_TYPE_STRUCT_OPS" {
			s.structOps = m
		}
	}
	if s.bss == nil || s.queue == nil || s.dispatch == nil {
		return nil, errors.Wrap(ErrNotLoaded, "missing .bss or ring buffer maps")
	}

	if err = s.AssignUserSchedPid(os.Getpid()); err != nil {
		return nil, errors.Wrap(err, "publish scheduler pid")
	}
	if err = s.enableSiblings(util.SysCPUDir); err != nil {
		return nil, err
	}
	if err = s.Attach(); err != nil {
		return nil, err
	}
	log.Info().Int("pid", os.Getpid()).Bool("partial", opts.Partial).Msg("scheduler attached")
	return s, nil
}

func (s *Sched) enableSiblings(cpuDir string) error {
	topo, err := util.GetTopology(cpuDir)
	if err != nil {
		return errors.Wrap(err, "read cpu topology")
	}
	for _, lvl := range []util.CacheLevel{util.L2, util.L3} {
		for _, pair := range topo.SiblingPairs(lvl) {
			if err := s.EnableSiblingCpu(int32(lvl), int32(pair[0]), int32(pair[1])); err != nil {
				return errors.Wrapf(err, "enable sibling L%d cpu %d -> %d", lvl, pair[0], pair[1])
			}
		}
	}
	return nil
}

func (s *Sched) Attach() error {
	if s.structOps == nil {
		return ErrStructOpsNone
	}
	link, err := s.structOps.AttachStructOps()
	if err != nil {
		return errors.Wrap(err, "attach struct_ops")
	}
	s.link = link
	return nil
}

// Close detaches the scheduler and frees the BPF object. It is safe to call more than once.
func (s *Sched) Close() {
	if s.link != nil {
		if err := s.link.Destroy(); err != nil {
			s.log.Warn().Err(err).Msg("detach struct_ops")
		}
		s.link = nil
	}
	if s.ringBuf != nil {
		s.ringBuf.Stop()
		s.ringBuf = nil
	}
	if s.mod != nil {
		s.mod.Close()
		s.mod = nil
	}
}
