// Package interpreter defines the contract spec.md explicitly keeps out of
// scope: "given a submitted atom produce either a serialized value or a
// serialized error, and while it runs emit standard-output/error byte
// streams tagged with the originating session" (spec §1, §4.5). This
// package owns only that contract and a reference implementation; it never
// embeds a real language runtime.
package interpreter

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"pyproxy/atom"
)

// Interpreter executes one atom synchronously and reports its result. The
// natural stdout/stderr of whatever the implementation runs is expected to
// land on the worker process's own standard streams — exactly what the
// master captures and re-attributes via the sentinel scheme (spec §4.5) —
// so implementations should not redirect a submission's output anywhere
// other than the process's inherited stdout/stderr.
type Interpreter interface {
	Execute(req atom.Request) atom.Result
}

// ExecInterpreter is the reference implementation: it runs an external
// command once per atom, feeds the code payload on the command's stdin, and
// lets the command's own stdout/stderr inherit the worker process's (so
// naive prints land exactly where the sentinel-bracketing scheme expects
// them). The Rust original forwards atoms to an embedded CPython via pyo3;
// that is not reachable from a Go module, and the spec already treats the
// interpreter as an external collaborator, so shelling out is the
// idiomatic substitute rather than a stand-in for a fake.
type ExecInterpreter struct {
	// Command is the executable to run. Defaults to /bin/sh.
	Command string
	// Args are passed to Command. Defaults to ["-s"], which makes /bin/sh
	// read its script from stdin — matching "forwards the code payload on
	// stdin" rather than passing it as a command-line argument.
	Args []string
}

// NewExecInterpreter builds an ExecInterpreter, defaulting to /bin/sh -s
// when command is empty.
func NewExecInterpreter(command string, args ...string) *ExecInterpreter {
	if command == "" {
		command = "/bin/sh"
		if len(args) == 0 {
			args = []string{"-s"}
		}
	}
	return &ExecInterpreter{Command: command, Args: args}
}

// Execute runs req.Code as the standard input of a fresh child process.
// Locals and globals blobs are opaque to this reference implementation (a
// real interpreter would deserialize them into name bindings before
// execution, per spec §4.5 step 1); ExecInterpreter has no notion of
// variable bindings, so they are ignored here rather than faked.
func (e *ExecInterpreter) Execute(req atom.Request) atom.Result {
	cmd := exec.Command(e.Command, e.Args...)
	cmd.Stdin = bytes.NewReader(req.Code)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return atom.Result{
			SessionID: req.SessionID,
			FutureID:  req.FutureID,
			IsError:   true,
			Payload:   []byte(fmt.Sprintf("%v", err)),
		}
	}
	return atom.Result{
		SessionID: req.SessionID,
		FutureID:  req.FutureID,
		IsError:   false,
		Payload:   nil,
	}
}
