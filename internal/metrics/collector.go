// Package metrics exposes scheduler state to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records scheduling decisions on a private registry. It
// implements schedule.Recorder.
type Collector struct {
	registry *prometheus.Registry

	entries     prometheus.Gauge
	active      prometheus.Gauge
	allowed     prometheus.Gauge
	reschedules prometheus.Counter
	rejections  prometheus.Counter
	peers       prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mogwai_schedule_entries",
			Help: "Number of registered schedule entries",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mogwai_schedule_active_entries",
			Help: "Number of entries currently allowed to download",
		}),
		allowed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mogwai_downloads_allowed",
			Help: "Admission gate state (1=open, 0=closed)",
		}),
		reschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mogwai_reschedules_total",
			Help: "Number of admission recomputations",
		}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mogwai_schedule_rejections_total",
			Help: "Number of entry updates rejected because the scheduler was full",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mogwai_connected_peers",
			Help: "Number of connected RPC clients",
		}),
	}
	reg.MustRegister(c.entries, c.active, c.allowed, c.reschedules, c.rejections, c.peers)
	reg.MustRegister(prometheus.NewGoCollector())
	return c
}

func (c *Collector) Rescheduled(entries, active int, allowed bool) {
	c.reschedules.Inc()
	c.entries.Set(float64(entries))
	c.active.Set(float64(active))
	if allowed {
		c.allowed.Set(1)
	} else {
		c.allowed.Set(0)
	}
}

func (c *Collector) Rejected() {
	c.rejections.Inc()
}

// PeerConnected and PeerDisconnected track RPC clients.
func (c *Collector) PeerConnected()    { c.peers.Inc() }
func (c *Collector) PeerDisconnected() { c.peers.Dec() }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
