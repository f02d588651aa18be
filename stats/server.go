package stats

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNoReply = errors.New("stats request not answered")

// Requester fetches one metrics snapshot.
type Requester interface {
	Request(ctx context.Context) (Metrics, error)
}

type request struct {
	reply chan Metrics
}

// Server hands metrics requests to the scheduling loop. Requests are accepted one at a
// time and each gets exactly one reply; the loop side never blocks.
type Server struct {
	reqCh chan request
}

func NewServer() *Server {
	return &Server{reqCh: make(chan request)}
}

// Request blocks until the scheduling loop answers or ctx is done.
func (s *Server) Request(ctx context.Context) (Metrics, error) {
	req := request{reply: make(chan Metrics, 1)}
	select {
	case s.reqCh <- req:
	case <-ctx.Done():
		return Metrics{}, errors.Wrap(ErrNoReply, ctx.Err().Error())
	}
	select {
	case m := <-req.reply:
		return m, nil
	case <-ctx.Done():
		return Metrics{}, errors.Wrap(ErrNoReply, ctx.Err().Error())
	}
}

// Poll answers a pending request with snapshot(), if there is one, and reports whether it did.
func (s *Server) Poll(snapshot func() Metrics) bool {
	select {
	case req := <-s.reqCh:
		req.reply <- snapshot()
		return true
	default:
		return false
	}
}
