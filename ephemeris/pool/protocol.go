// Package pool dispatches compute jobs across a bounded set of isolated
// worker processes. The native ephemeris context is not safe under
// shared-address-space concurrency, so each worker is an OS process that
// has completed kernel initialization; the parent speaks newline-framed
// JSON to it over stdin/stdout.
package pool

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/siderealabs/ephemerisd/ephemeris/compute"
	"github.com/siderealabs/ephemerisd/faults"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jobRequest is one unit of work sent to a worker.
type jobRequest struct {
	ID  string          `json:"id"`
	Req compute.Request `json:"req"`
}

// jobResponse carries either a result or a taxonomy fault back from a
// worker. Exactly one of the two is set.
type jobResponse struct {
	ID     string          `json:"id"`
	Result *compute.Result `json:"result,omitempty"`
	Fault  *faults.Fault   `json:"fault,omitempty"`
}
