package core

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	bpf "github.com/aquasecurity/libbpfgo"
	"github.com/pkg/errors"

	"github.com/Gthulhu/scx_netland/models"
)

const (
	UEI_REASON_LEN = 128
	UEI_MSG_LEN    = 1024
)

// UserExitInfo mirrors struct user_exit_info in .data.
type UserExitInfo struct {
	Kind     int32
	Paid     uint32
	ExitCode int64
	Reason   [UEI_REASON_LEN]byte
	Message  [UEI_MSG_LEN]byte
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (u UserExitInfo) Report() *models.ExitReport {
	return &models.ExitReport{
		Kind:     u.Kind,
		ExitCode: u.ExitCode,
		Reason:   cString(u.Reason[:]),
		Message:  cString(u.Message[:]),
	}
}

func decodeUei(b []byte) (UserExitInfo, error) {
	var uei UserExitInfo
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &uei); err != nil {
		return UserExitInfo{}, errors.Wrap(err, "decode exit info")
	}
	return uei, nil
}

type UeiMap struct {
	*bpf.BPFMap
}

func (s *Sched) GetUeiData() (UserExitInfo, error) {
	if s.uei == nil {
		return UserExitInfo{}, ErrNotLoaded
	}
	i := 0
	b, err := s.uei.BPFMap.GetValue(unsafe.Pointer(&i))
	if err != nil {
		return UserExitInfo{}, errors.Wrap(err, "read exit info")
	}
	return decodeUei(b)
}

// Exited reports whether sched_ext unregistered the scheduler. An unreadable exit info
// counts as exited so the session winds down instead of spinning.
func (s *Sched) Exited() bool {
	uei, err := s.GetUeiData()
	if err != nil {
		s.log.Warn().Err(err).Msg("exit info unavailable")
		return true
	}
	return uei.Kind != models.SCX_EXIT_NONE
}

// ShutdownAndReport detaches the scheduler and returns the exit info it left behind.
func (s *Sched) ShutdownAndReport() (*models.ExitReport, error) {
	if s.mod == nil {
		return nil, ErrNotLoaded
	}
	if s.link != nil {
		if err := s.link.Destroy(); err != nil {
			s.log.Warn().Err(err).Msg("detach struct_ops")
		}
		s.link = nil
	}
	uei, err := s.GetUeiData()
	s.Close()
	if err != nil {
		return nil, err
	}
	return uei.Report(), nil
}
