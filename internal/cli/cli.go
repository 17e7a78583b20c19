package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chatctl/internal/history"
	"chatctl/internal/llm"
)

// Exit codes returned by Execute.
const (
	exitOK = iota
	exitFailure
	exitUsage
	exitAPI
	exitNetwork
)

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	root := NewRootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var usage usageError
	if errors.As(err, &usage) || errors.Is(err, history.ErrInvalidName) {
		return exitUsage
	}
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		return exitFailure
	}
	switch llmErr.Kind {
	case llm.InvalidArgument:
		return exitUsage
	case llm.API:
		return exitAPI
	case llm.Transport, llm.Stream:
		return exitNetwork
	default:
		return exitFailure
	}
}

// usageError marks bad command line input.
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}
