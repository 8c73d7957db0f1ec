package httphandler

import (
	"encoding/json"
	"net/http"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// TrackRequest is the JSON body for the track repository endpoint. Repo
// accepts "owner/name" or a github.com URL.
type TrackRequest struct {
	Repo string `json:"repo"`
}

// RepoResponse is the JSON representation of a tracked repository.
type RepoResponse struct {
	FullName string `json:"full_name"`
	Owner    string `json:"owner"`
	Name     string `json:"name"`
}

// LabelsResponse is the JSON representation of a label subscription.
type LabelsResponse struct {
	Labels []string `json:"labels"`
}

// ToggleLabelRequest is the JSON body for the toggle label endpoint.
type ToggleLabelRequest struct {
	Label string `json:"label"`
}

// ToggleLabelResponse reports a label's subscription state after a toggle.
type ToggleLabelResponse struct {
	Label   string `json:"label"`
	Tracked bool   `json:"tracked"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
