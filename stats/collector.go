package stats

import (
	"context"
	"time"

	"github.com/Gthulhu/scx_netland/logger"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scx_netland"

type metricDesc struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(m *Metrics) float64
}

func newDesc(name, help string, vt prometheus.ValueType, value func(m *Metrics) float64) metricDesc {
	return metricDesc{
		desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		valueType: vt,
		value:     value,
	}
}

// Collector exposes one scheduler snapshot per scrape.
type Collector struct {
	src     Requester
	timeout time.Duration
	descs   []metricDesc
}

func NewCollector(src Requester, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = time.Second
	}
	g, c := prometheus.GaugeValue, prometheus.CounterValue
	return &Collector{
		src:     src,
		timeout: timeout,
		descs: []metricDesc{
			newDesc("running_tasks", "Tasks currently running.", g, func(m *Metrics) float64 { return float64(m.NrRunning) }),
			newDesc("online_cpus", "Online CPUs.", g, func(m *Metrics) float64 { return float64(m.NrCpus) }),
			newDesc("queued_tasks", "Tasks queued to user space.", g, func(m *Metrics) float64 { return float64(m.NrQueued) }),
			newDesc("scheduled_tasks", "Tasks held by the user-space scheduler.", g, func(m *Metrics) float64 { return float64(m.NrScheduled) }),
			newDesc("pool_tasks", "Tasks in the deadline pool.", g, func(m *Metrics) float64 { return float64(m.NrPool) }),
			newDesc("congestion_score", "Network congestion score in [0, 100].", g, func(m *Metrics) float64 { return float64(m.CongestionScore) }),
			newDesc("page_faults_total", "Page faults since session start.", c, func(m *Metrics) float64 { return float64(m.NrPageFaults) }),
			newDesc("user_dispatches_total", "User-space dispatches.", c, func(m *Metrics) float64 { return float64(m.NrUserDispatches) }),
			newDesc("kernel_dispatches_total", "Kernel dispatches.", c, func(m *Metrics) float64 { return float64(m.NrKernelDispatches) }),
			newDesc("cancel_dispatches_total", "Cancelled dispatches.", c, func(m *Metrics) float64 { return float64(m.NrCancelDispatches) }),
			newDesc("bounce_dispatches_total", "Bounced dispatches.", c, func(m *Metrics) float64 { return float64(m.NrBounceDispatches) }),
			newDesc("failed_dispatches_total", "Failed dispatches.", c, func(m *Metrics) float64 { return float64(m.NrFailedDispatches) }),
			newDesc("sched_congested_total", "Times the dispatch path was congested.", c, func(m *Metrics) float64 { return float64(m.NrSchedCongested) }),
			newDesc("dispatched_total", "Tasks dispatched by the deadline engine.", c, func(m *Metrics) float64 { return float64(m.NrDispatched) }),
			newDesc("requeued_total", "Dispatches refused and put back in the pool.", c, func(m *Metrics) float64 { return float64(m.NrRequeued) }),
			newDesc("replaced_total", "Pool entries replaced by a newer enqueue of the same pid.", c, func(m *Metrics) float64 { return float64(m.NrReplaced) }),
			newDesc("dequeue_errors_total", "Failed dequeues.", c, func(m *Metrics) float64 { return float64(m.NrDequeueErrors) }),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	m, err := c.src.Request(ctx)
	if err != nil {
		logger.Logger(ctx).Debug().Err(err).Msg("metrics scrape without snapshot")
		return
	}
	for _, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.valueType, d.value(&m))
	}
}
