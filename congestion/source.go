package congestion

import (
	"strings"

	linuxproc "github.com/c9s/goprocinfo/linux"
	"github.com/pkg/errors"
)

const ProcNetDev = "/proc/net/dev"

var ErrInterfaceNotFound = errors.New("interface not found")

// Source reads the current counters of the monitored interface.
type Source interface {
	Read() (Sample, error)
}

// ProcNetDevSource reads rx_dropped and tx_errors for one interface from /proc/net/dev.
type ProcNetDevSource struct {
	Path  string
	Iface string
}

func NewProcNetDevSource(iface string) *ProcNetDevSource {
	return &ProcNetDevSource{Path: ProcNetDev, Iface: iface}
}

func (s *ProcNetDevSource) Read() (Sample, error) {
	stats, err := linuxproc.ReadNetworkStat(s.Path)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "read %s", s.Path)
	}
	for _, st := range stats {
		if strings.TrimSpace(st.Iface) != s.Iface {
			continue
		}
		return Sample{RxDropped: st.RxDrop, TxErrors: st.TxErrs}, nil
	}
	return Sample{}, errors.Wrap(ErrInterfaceNotFound, s.Iface)
}
