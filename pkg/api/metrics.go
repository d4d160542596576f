package api

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// routeCollector implements prometheus.Collector, reading the parse
// counters and the table store on each scrape.
type routeCollector struct {
	srv *Server

	parsesTotal *prometheus.Desc
	subscribers *prometheus.Desc
	uptime      *prometheus.Desc

	tablesTotal *prometheus.Desc
	tableRoutes *prometheus.Desc

	authRejected *prometheus.Desc
}

func newCollector(srv *Server) *routeCollector {
	return &routeCollector{
		srv: srv,

		parsesTotal: prometheus.NewDesc(
			"routegrammar_parses_total",
			"Route parse attempts by front end and result.",
			[]string{"source", "result"}, nil,
		),
		subscribers: prometheus.NewDesc(
			"routegrammar_stream_subscribers",
			"Open parse event streams.",
			nil, nil,
		),
		uptime: prometheus.NewDesc(
			"routegrammar_uptime_seconds",
			"Seconds since the API server started.",
			nil, nil,
		),
		tablesTotal: prometheus.NewDesc(
			"routegrammar_tables",
			"Stored routing tables.",
			nil, nil,
		),
		tableRoutes: prometheus.NewDesc(
			"routegrammar_table_routes",
			"Routes per stored table.",
			[]string{"table"}, nil,
		),
		authRejected: prometheus.NewDesc(
			"routegrammar_auth_rejected_total",
			"API requests refused for missing or bad credentials.",
			[]string{"method"}, nil,
		),
	}
}

func (c *routeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.parsesTotal
	ch <- c.subscribers
	ch <- c.uptime
	ch <- c.tablesTotal
	ch <- c.tableRoutes
	ch <- c.authRejected
}

func (c *routeCollector) Collect(ch chan<- prometheus.Metric) {
	rec := c.srv.recorder
	for k, v := range rec.Counts() {
		ch <- prometheus.MustNewConstMetric(c.parsesTotal, prometheus.CounterValue,
			float64(v), k.Source, k.Result)
	}
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue,
		float64(rec.Subscribers()))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue,
		time.Since(c.srv.startTime).Seconds())

	if c.srv.auth != nil {
		for method, n := range c.srv.auth.Rejected() {
			ch <- prometheus.MustNewConstMetric(c.authRejected, prometheus.CounterValue,
				float64(n), method)
		}
	}

	c.collectTables(ch)
}

func (c *routeCollector) collectTables(ch chan<- prometheus.Metric) {
	if c.srv.tables == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	infos, err := c.srv.tables.ListTables(ctx)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.tablesTotal, prometheus.GaugeValue, float64(len(infos)))
	for _, t := range infos {
		ch <- prometheus.MustNewConstMetric(c.tableRoutes, prometheus.GaugeValue,
			float64(t.Routes), t.Name)
	}
}
