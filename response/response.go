package response

import (
	"encoding/json"
	"net/http"
)

// V1Response is the JSON envelope returned by every endpoint
type V1Response struct {
	Success  bool        `json:"success"`
	Result   interface{} `json:"result"`
	Messages []string    `json:"messages"`
}

// WriteResponse will write the result wrapped in the V1Response envelope with HTTP 200
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(V1Response{
		Success:  true,
		Result:   result,
		Messages: []string{},
	})
}

// WriteError will write the Error wrapped in the V1Response envelope with the Error's status code
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	messages := e.Messages
	if len(e.Message) > 0 {
		messages = append([]string{e.Message}, messages...)
	}
	json.NewEncoder(w).Encode(V1Response{
		Success:  false,
		Result:   e.Result,
		Messages: messages,
	})
}
