package handlers

// StatusResponse represents the health status of the daemon.
type StatusResponse struct {
	Status      string `json:"status"`      // health status ("ok").
	Timestamp   string `json:"ts"`          // timestamp when the status was taken.
	Version     string `json:"version"`     // version of the daemon.
	Revision    string `json:"revision"`    // revision of the daemon.
	BuildDate   string `json:"buildDate"`   // build date of the daemon.
	StartedAt   string `json:"startedAt"`   // daemon start time, RFC3339.
	Uptime      string `json:"uptime"`      // human readable uptime.
	Paused      bool   `json:"paused"`      // notify threads are paused.
	Roots       int    `json:"roots"`       // number of registered roots.
	Events      uint64 `json:"events"`      // events handed off across all roots.
	Subscribers int    `json:"subscribers"` // open change subscriptions.

	Process *ProcessStats `json:"process,omitempty"` // daemon resource usage.
}
