package pool

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/siderealabs/ephemerisd/ephemeris/compute"
	"github.com/siderealabs/ephemerisd/ephemeris/kernel"
	"github.com/siderealabs/ephemerisd/faults"
)

var workerLog = logrus.WithField("prefix", "worker")

// RunWorker is the entrypoint of the hidden worker subcommand: verify and
// pin the kernel bundle, open the native engine, then serve jobs from
// stdin until EOF. The bundle is released on every exit path, including
// termination signals.
func RunWorker(manifestPath string) error {
	bundle, err := kernel.Open(manifestPath)
	if err != nil {
		return err
	}
	defer bundle.Release()

	engine, err := compute.OpenJPL(bundle.SPKPath())
	if err != nil {
		return errors.Wrap(err, "could not open ephemeris engine")
	}
	core := compute.NewCore(engine, bundle)
	defer func() {
		if err := core.Close(); err != nil {
			workerLog.WithError(err).Warn("Could not close engine")
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		bundle.Release()
		os.Exit(0)
	}()

	workerLog.WithField("bundle", bundle.ID()).Info("Worker ready")
	return ServeJobs(core, os.Stdin, os.Stdout)
}

// ServeJobs runs the worker's decode-compute-encode loop. Panics inside a
// single job are caught and surfaced as COMPUTE faults; they never take
// the process down.
func ServeJobs(core *compute.Core, r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)
	// jsoniter's Decode does not return a bare io.EOF when the stream ends
	// on trailing whitespace (e.g. the newline framing), so end-of-stream
	// is detected via More instead.
	for dec.More() {
		var job jobRequest
		if err := dec.Decode(&job); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "could not decode job")
		}
		resp := executeJob(core, job)
		if err := enc.Encode(resp); err != nil {
			return errors.Wrap(err, "could not encode job response")
		}
	}
	return nil
}

func executeJob(core *compute.Core, job jobRequest) (resp jobResponse) {
	resp.ID = job.ID
	defer func() {
		if r := recover(); r != nil {
			workerLog.WithField("job", job.ID).Errorf("Panic during compute: %v", r)
			resp.Result = nil
			resp.Fault = faults.New(faults.CodeCompute, "the ephemeris engine reported an error")
		}
	}()

	result, err := core.Compute(job.Req)
	if err != nil {
		resp.Fault = faults.From(faults.ClassifyNative(err))
		return resp
	}
	resp.Result = result
	return resp
}
