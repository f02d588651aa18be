package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Gthulhu/scx_netland/logger"
	"github.com/pkg/errors"
)

// Client reads snapshots from a running scheduler's stats endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimSuffix(addr, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Request(ctx context.Context) (Metrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+StatsPath, nil)
	if err != nil {
		return Metrics{}, errors.WithStack(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "fetch stats")
	}
	defer resp.Body.Close()

	var body StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Metrics{}, errors.Wrapf(err, "decode stats (status %d)", resp.StatusCode)
	}
	if !body.Success || body.Data == nil {
		return Metrics{}, errors.Wrap(ErrNoReply, body.Message)
	}
	return *body.Data, nil
}

// RunMonitor logs one formatted snapshot per interval until ctx is done. Fetch errors are
// logged and the monitor keeps going.
func RunMonitor(ctx context.Context, src Requester, interval time.Duration) {
	ctx = logger.WithComponent(ctx, "stats")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m, err := src.Request(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Logger(ctx).Warn().Err(err).Msg("stats unavailable")
		} else {
			logger.Logger(ctx).Info().Msg(m.Format())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
