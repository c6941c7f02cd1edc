// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tools wraps the external programs the conversion pipeline
// drives: ddjvu, djvused, djvu2hocr, pdfbeads and pdftk. Each concern is
// an interface so the pipeline can be exercised with fakes.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ToolError reports a failed invocation of an external program.
type ToolError struct {
	Tool   string
	Args   []string
	Status int // exit status, or -1 when the program did not run to exit
	Err    error
}

func (e *ToolError) Error() string {
	cmd := strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
	if e.Status >= 0 {
		return fmt.Sprintf("%s: exit status %d", cmd, e.Status)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// invocation describes one process to start.
type invocation struct {
	name   string
	args   []string
	dir    string
	stdout io.Writer
	stderr io.Writer
}

// executor abstracts process execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, inv invocation) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Run(ctx context.Context, inv invocation) error {
	cmd := exec.CommandContext(ctx, inv.name, inv.args...)
	cmd.Dir = inv.dir
	cmd.Stdout = inv.stdout
	cmd.Stderr = inv.stderr
	return cmd.Run()
}

// exitCoder is satisfied by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// toolError wraps err from running name with args. A nil err stays nil.
func toolError(name string, args []string, err error) error {
	if err == nil {
		return nil
	}
	status := -1
	var ec exitCoder
	if errors.As(err, &ec) && ec.ExitCode() >= 0 {
		status = ec.ExitCode()
	}
	return &ToolError{Tool: name, Args: args, Status: status, Err: err}
}
