package tools

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
)

// Command is one program invocation.
type Command struct {
	Name string
	Args []string
	// Env is added to the inherited environment.
	Env map[string]string
	Dir string
}

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
}

// CommandRunner abstracts process execution for task runners.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner executes commands on the local host. Cancelling ctx kills the
// process.
type ExecRunner struct{}

func (r ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: int32(exitErr.ExitCode())}, err
	}

	exitCode := int32(1)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: exitCode}, err
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := append([]string(nil), base...)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
