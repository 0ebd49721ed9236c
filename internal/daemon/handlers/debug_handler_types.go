package handlers

type RecrawlRequest struct {
	Path   string `json:"path" binding:"required"`
	Reason string `json:"reason"`
}

type PauseResponse struct {
	Paused bool `json:"paused"`
}
