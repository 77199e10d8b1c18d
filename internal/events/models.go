package events

// JobEvent is the payload pushed to devices and fleet listeners for every
// job lifecycle edge.
type JobEvent struct {
	JobID      string `json:"job_id"`
	DeviceID   string `json:"device_id"`
	CampaignID string `json:"campaign_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type DeviceEvent struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}
