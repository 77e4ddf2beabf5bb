package main

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON is the one shared response helper for the debug mirror's
// read-only routes, mirroring server.Mainframe's own graphHandler
// error-reporting style.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("pmud: error encoding debug response: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
