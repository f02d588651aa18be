package stats

import (
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// PageFaultTracker reports this process's page faults since the first successful sample.
type PageFaultTracker struct {
	fs  procfs.FS
	pid int

	baseline    uint64
	hasBaseline bool
}

// NewPageFaultTracker reads from the procfs mounted at mount. A pid of 0 means the
// current process.
func NewPageFaultTracker(mount string, pid int) (*PageFaultTracker, error) {
	fs, err := procfs.NewFS(mount)
	if err != nil {
		return nil, errors.Wrapf(err, "open procfs at %s", mount)
	}
	return &PageFaultTracker{fs: fs, pid: pid}, nil
}

func (p *PageFaultTracker) total() (uint64, error) {
	var (
		proc procfs.Proc
		err  error
	)
	if p.pid == 0 {
		proc, err = p.fs.Self()
	} else {
		proc, err = p.fs.Proc(p.pid)
	}
	if err != nil {
		return 0, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(stat.MinFlt) + uint64(stat.MajFlt), nil
}

// Delta returns the faults taken since the baseline. A read error yields 0.
func (p *PageFaultTracker) Delta() uint64 {
	if p == nil {
		return 0
	}
	n, err := p.total()
	if err != nil {
		return 0
	}
	if !p.hasBaseline {
		p.baseline, p.hasBaseline = n, true
	}
	if n < p.baseline {
		return 0
	}
	return n - p.baseline
}

// Reset makes the next successful sample the new baseline.
func (p *PageFaultTracker) Reset() {
	if p == nil {
		return
	}
	p.hasBaseline = false
}
