package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/browserctl/pkg/models"
)

// controller is the part of a Daemon exposed on its control endpoint.
type controller interface {
	State() models.TracerState
	RequestStop()
}

// newControlRouter serves the loopback control endpoint:
//
//	GET  /v1/status  current TracerState
//	POST /v1/stop    finish the recording; answers 202 before it is saved
func newControlRouter(c controller) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c.State())
	}).Methods("GET")

	api.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		c.RequestStop()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]bool{"stopping": true})
	}).Methods("POST")

	return r
}
