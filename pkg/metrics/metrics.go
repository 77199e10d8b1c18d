package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	fleetdeck = "fleetdeck"

	// Dispatch metrics
	jobsDispatchedTotal = "jobs_dispatched_total"
	claimConflictsTotal = "job_claim_conflicts_total"

	// Progress metrics
	taskReportsTotal = "task_reports_total"

	// Fleet metrics
	JobStatusCount    = "job_status_count"
	DeviceStatusCount = "device_status_count"

	// Labels
	jobKindLabel     = "kind"
	taskStatusLabel  = "status"
	jobStateLabel    = "state"
	deviceStateLabel = "state"
)

var jobsDispatchedTotalLabels = []string{
	jobKindLabel,
}

var taskReportsTotalLabels = []string{
	taskStatusLabel,
}

/**
* Metrics definition
**/
var jobsDispatchedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: fleetdeck,
		Name:      jobsDispatchedTotal,
		Help:      "number of jobs created by campaign dispatch, partitioned by single flow vs chained",
	},
	jobsDispatchedTotalLabels,
)

var claimConflictsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: fleetdeck,
		Name:      claimConflictsTotal,
		Help:      "number of job claims lost to another device or a status race",
	},
)

var taskReportsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: fleetdeck,
		Name:      taskReportsTotal,
		Help:      "number of task progress reports received, partitioned by reported status",
	},
	taskReportsTotalLabels,
)

var jobStatusCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: fleetdeck,
		Name:      JobStatusCount,
		Help:      "metrics to record the number of jobs in each status",
	},
	[]string{jobStateLabel},
)

var deviceStatusCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: fleetdeck,
		Name:      DeviceStatusCount,
		Help:      "metrics to record the number of devices in each status",
	},
	[]string{deviceStateLabel},
)

func IncreaseJobsDispatchedMetric(kind string) {
	labels := prometheus.Labels{
		jobKindLabel: kind,
	}
	jobsDispatchedTotalMetric.With(labels).Inc()
}

func IncreaseClaimConflictsMetric() {
	claimConflictsTotalMetric.Inc()
}

func IncreaseTaskReportsMetric(status string) {
	labels := prometheus.Labels{
		taskStatusLabel: status,
	}
	taskReportsTotalMetric.With(labels).Inc()
}

func UpdateJobStateCounterMetric(state string, count int) {
	labels := prometheus.Labels{
		jobStateLabel: state,
	}
	jobStatusCountMetric.With(labels).Set(float64(count))
}

func UpdateDeviceStateCounterMetric(state string, count int) {
	labels := prometheus.Labels{
		deviceStateLabel: state,
	}
	deviceStatusCountMetric.With(labels).Set(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsDispatchedTotalMetric)
	prometheus.MustRegister(claimConflictsTotalMetric)
	prometheus.MustRegister(taskReportsTotalMetric)
	prometheus.MustRegister(jobStatusCountMetric)
	prometheus.MustRegister(deviceStatusCountMetric)
}
