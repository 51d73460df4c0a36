package dto

// Event names understood by the collector.
const (
	EventRegistered = "registered"
	EventTrain      = "train"
)

// RegisteredPayload is sent once per accepted frame.
type RegisteredPayload struct {
	Image string `json:"image"`
	Name  string `json:"name"`
}

// TrainPayload tells the collector that all frames for Name have been sent.
type TrainPayload struct {
	Name string `json:"name"`
}
