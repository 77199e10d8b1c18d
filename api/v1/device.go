package v1

import "time"

type HeartbeatRequest struct {
	Status string `json:"status,omitempty" validate:"omitempty,device_status"`
}

type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
