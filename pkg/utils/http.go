package utils

import (
	"encoding/json"
	"net/http"
)

// WriteJSONResponse writes data as a JSON body with the given status code.
// The header must not have been written yet.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
