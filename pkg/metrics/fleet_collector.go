package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fleetdeck/fleetdeck/internal/store"
)

type fleetStatsCollector struct {
	store           store.Store
	totalJobs       *prometheus.Desc
	totalDevices    *prometheus.Desc
	activeCampaigns *prometheus.Desc
	jobsByStatus    *prometheus.Desc
	devicesByStatus *prometheus.Desc
}

// RegisterFleetStatsCollector exposes store-backed fleet statistics on the
// default registry. Values are computed at scrape time.
func RegisterFleetStatsCollector(s store.Store) {
	prometheus.MustRegister(newFleetStatsCollector(s))
}

func newFleetStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_fleet_%s", fleetdeck, name)
	}

	return &fleetStatsCollector{
		store: s,
		totalJobs: prometheus.NewDesc(
			fqName("jobs_total"),
			"Total number of workflow jobs.",
			nil,
			prometheus.Labels{},
		),
		totalDevices: prometheus.NewDesc(
			fqName("devices_total"),
			"Total number of enrolled devices.",
			nil,
			prometheus.Labels{},
		),
		activeCampaigns: prometheus.NewDesc(
			fqName("active_campaigns_total"),
			"Number of campaigns currently active.",
			nil,
			prometheus.Labels{},
		),
		jobsByStatus: prometheus.NewDesc(
			fqName("jobs_by_status_total"),
			"Workflow jobs by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		devicesByStatus: prometheus.NewDesc(
			fqName("devices_by_status_total"),
			"Devices by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
	}
}

func (c *fleetStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalJobs
	ch <- c.totalDevices
	ch <- c.activeCampaigns
	ch <- c.jobsByStatus
	ch <- c.devicesByStatus
}

// Collect implements Collector.
func (c *fleetStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.store.Statistics(context.Background())
	if err != nil {
		zap.S().Named("fleet_collector").Errorf("failed to collect fleet statistics: %s", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.totalJobs, prometheus.GaugeValue, float64(stats.TotalJobs))
	ch <- prometheus.MustNewConstMetric(c.totalDevices, prometheus.GaugeValue, float64(stats.TotalDevices))
	ch <- prometheus.MustNewConstMetric(c.activeCampaigns, prometheus.GaugeValue, float64(stats.ActiveCampaigns))

	for status, total := range stats.JobsByStatus {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(total), status)
	}

	for status, total := range stats.DevicesByStatus {
		ch <- prometheus.MustNewConstMetric(c.devicesByStatus, prometheus.GaugeValue, float64(total), status)
	}
}
