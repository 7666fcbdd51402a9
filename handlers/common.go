package handlers

type Response struct {
	Error string `json:"error"`
}

var (
	// Predefined errors
	NotFoundResponse    = Response{"not found"}
	BackendDownResponse = Response{"Server error. Please try again."}
)
