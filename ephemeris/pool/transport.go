package pool

import (
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// transport is the parent's handle on one worker. Implementations carry a
// single in-flight job at a time; responses arrive on the channel returned
// by responses, which closes when the worker goes away.
type transport interface {
	send(jobRequest) error
	responses() <-chan jobResponse
	kill()
}

// SpawnFunc creates a ready transport. The pool's default forks the
// running binary's worker subcommand; LocalSpawn runs the worker loop
// in-process instead.
type SpawnFunc func() (transport, error)

// procTransport wraps a forked worker process speaking newline-framed
// JSON over its stdin/stdout.
type procTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	respCh chan jobResponse
}

// spawnProcess re-execs the current binary with the hidden worker
// subcommand. Worker stderr is passed through so its logs interleave with
// the parent's.
func spawnProcess(manifestPath string) (transport, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "could not locate executable")
	}
	cmd := exec.Command(exe, "worker", "--manifest", manifestPath)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "could not open worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "could not open worker stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "could not start worker process")
	}

	t := newProcTransport(cmd, stdin)
	go t.readLoop(stdout)
	return t, nil
}

func newProcTransport(cmd *exec.Cmd, stdin io.WriteCloser) *procTransport {
	// The channel holds one response: a reply racing the job timeout must
	// not wedge readLoop once the slot stops receiving, and a worker
	// carries at most one job at a time.
	return &procTransport{cmd: cmd, stdin: stdin, respCh: make(chan jobResponse, 1)}
}

func (t *procTransport) readLoop(stdout io.Reader) {
	defer close(t.respCh)
	dec := json.NewDecoder(stdout)
	for {
		var resp jobResponse
		if err := dec.Decode(&resp); err != nil {
			return
		}
		t.respCh <- resp
	}
}

func (t *procTransport) send(job jobRequest) error {
	return json.NewEncoder(t.stdin).Encode(job)
}

func (t *procTransport) responses() <-chan jobResponse {
	return t.respCh
}

func (t *procTransport) kill() {
	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	_ = t.cmd.Wait()
}
