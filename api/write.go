package api

import (
	"net/http"
	"strconv"

	"github.com/siderealabs/ephemerisd/faults"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response body")
	}
}

// writeFault renders any error as its taxonomy fault. Retry hints become
// a Retry-After header so well-behaved clients can back off.
func writeFault(w http.ResponseWriter, err error) {
	f := faults.From(err)
	if f.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(f.RetryAfter))
	}
	writeJSON(w, faults.HTTPStatus(f.Code), f)
}
