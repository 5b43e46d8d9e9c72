package glue

import (
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports glue counters to Prometheus.
type Collector struct {
	g *Glue

	counters *prometheus.Desc
	state    *prometheus.Desc
	ready    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for g. Register it with a registry.
func NewCollector(g *Glue, namespace string) *Collector {
	return &Collector{
		g: g,
		counters: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "glue", "counter"),
			"Glue counters by name",
			[]string{"name"}, nil,
		),
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "glue", "state"),
			"Glue state (0=idle, 1=init, 2=wait-ready, 3=run)",
			nil, nil,
		),
		ready: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "glue", "interface_ready"),
			"Whether the interface completed bring-up",
			[]string{"interface"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counters
	ch <- c.state
	ch <- c.ready
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counters := c.g.Counters()
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch <- prometheus.MustNewConstMetric(c.counters, prometheus.UntypedValue, float64(counters[name]), name)
	}

	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(c.g.State()))
	for i := 0; i < c.g.Interfaces(); i++ {
		v := 0.0
		if c.g.Ready(i) {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, v, strconv.Itoa(i))
	}
}
