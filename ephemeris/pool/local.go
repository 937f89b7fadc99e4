package pool

import (
	"io"

	"github.com/siderealabs/ephemerisd/ephemeris/compute"
)

// LocalSpawn runs the worker loop in-process over pipes instead of
// forking a subprocess. It trades crash isolation for simplicity and is
// meant for tests and single-process development runs.
func LocalSpawn(newCore func() (*compute.Core, error)) SpawnFunc {
	return func() (transport, error) {
		core, err := newCore()
		if err != nil {
			return nil, err
		}
		jobR, jobW := io.Pipe()
		respR, respW := io.Pipe()
		t := &localTransport{
			jobW:   jobW,
			respR:  respR,
			respCh: make(chan jobResponse),
		}
		go func() {
			defer func() {
				_ = respW.Close()
				if err := core.Close(); err != nil {
					workerLog.WithError(err).Warn("Could not close engine")
				}
			}()
			if err := ServeJobs(core, jobR, respW); err != nil {
				workerLog.WithError(err).Debug("In-process worker loop exited")
			}
		}()
		go t.readLoop()
		return t, nil
	}
}

type localTransport struct {
	jobW   *io.PipeWriter
	respR  *io.PipeReader
	respCh chan jobResponse
}

func (t *localTransport) readLoop() {
	defer close(t.respCh)
	dec := json.NewDecoder(t.respR)
	for {
		var resp jobResponse
		if err := dec.Decode(&resp); err != nil {
			return
		}
		t.respCh <- resp
	}
}

func (t *localTransport) send(job jobRequest) error {
	return json.NewEncoder(t.jobW).Encode(job)
}

func (t *localTransport) responses() <-chan jobResponse {
	return t.respCh
}

func (t *localTransport) kill() {
	_ = t.jobW.Close()
	_ = t.respR.Close()
}
