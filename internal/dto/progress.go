package dto

// Progress is a point-in-time view of an enrollment, served to local viewers.
type Progress struct {
	SessionID string `json:"sessionId,omitempty"`
	Label     string `json:"label"`
	State     string `json:"state,omitempty"`
	Count     int    `json:"count"`
	Quota     int    `json:"quota"`
	Complete  bool   `json:"complete"`
	Warning   string `json:"warning,omitempty"`
}

// ViewerMessage is what the preview hub broadcasts to connected viewers.
type ViewerMessage struct {
	Type     string    `json:"type"` // "progress" or "preview"
	Progress *Progress `json:"progress,omitempty"`
	Image    string    `json:"image,omitempty"`
	Faces    int       `json:"faces,omitempty"`
}
