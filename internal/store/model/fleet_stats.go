package model

// FleetStats is a point-in-time rollup used by the metrics gauges.
type FleetStats struct {
	TotalJobs       int
	JobsByStatus    map[string]int
	TotalDevices    int
	DevicesByStatus map[string]int
	ActiveCampaigns int
}

func NewFleetStats() FleetStats {
	return FleetStats{
		JobsByStatus:    make(map[string]int),
		DevicesByStatus: make(map[string]int),
	}
}
