package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type uniqueDevices struct {
	counter   prometheus.Gauge
	seenCache map[string]struct{} // TODO: persist in the DB, the cache resets with the process.
	mu        sync.RWMutex
}

// Devices polling for work at least once during the window.
const activeDevicesPerWeek = "active_devices_per_week"

var totalActiveDevicesPerWeekMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: fleetdeck,
		Name:      activeDevicesPerWeek,
		Help:      "metrics to record the number of unique devices seen per week",
	},
)

var ActiveDevicesPerWeek = &uniqueDevices{
	counter:   totalActiveDevicesPerWeekMetric,
	seenCache: make(map[string]struct{}),
}

func (v *uniqueDevices) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seenCache = make(map[string]struct{})
	v.counter.Set(0)
}

func (v *uniqueDevices) Observe(deviceID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.seenCache[deviceID]; exists {
		return
	}

	v.seenCache[deviceID] = struct{}{}
	v.counter.Inc()
}
