package response

import (
	"encoding/json"
	"net/http"
)

// WriteError writes the error envelope with its status code
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	if e == nil {
		e = ErrUnexpected()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(e)
}

// WriteResponse writes v as a 200 JSON body
func WriteResponse(w http.ResponseWriter, r *http.Request, v interface{}) {
	WriteResponseWithStatus(w, r, http.StatusOK, v)
}

// WriteResponseWithStatus writes v as a JSON body with a custom status code
func WriteResponseWithStatus(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Result interface{} `json:"result"`
	}{
		Result: v,
	})
}
