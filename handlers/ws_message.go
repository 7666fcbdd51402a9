package handlers

const (
	WSMessageVideos = "videos"
	WSMessageError  = "error"
)

type WSMessage struct {
	Type   string   `json:"type"`
	Videos []string `json:"videos,omitempty"`
	Error  string   `json:"error,omitempty"`
}
