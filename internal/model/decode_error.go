package model

// DispatchFailure records a log whose decoding or handling failed, kept for replay.
type DispatchFailure struct {
	Log      RawLog `json:"log"`
	Event    string `json:"event,omitempty"`
	Error    string `json:"error"`
	FailedAt string `json:"failed_at"`
}
