package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"classifyd/internal/pool"
)

// exitCodeError carries a specific process exit code.
type exitCodeError struct {
	code int
	err  error
}

func (e exitCodeError) Error() string { return e.err.Error() }
func (e exitCodeError) Unwrap() error { return e.err }

// MainWithArgs runs the CLI and returns the process exit code.
func MainWithArgs(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	root := buildRootCmd(stdout, stderr)
	if len(args) == 0 {
		_ = root.Help()
		return 2
	}
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, err.Error())
		var ec exitCodeError
		if errors.As(err, &ec) {
			return ec.code
		}
		if pool.IsDependencyUnavailable(err) {
			return 1
		}
		if pool.IsArtifactNotFound(err) || pool.IsArtifactCorrupt(err) {
			return 3
		}
		return 1
	}
	return 0
}

func buildRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "classifyd",
		Short:         "Pooled image classification engines over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(buildServeCmd(), buildProbeCmd())
	return root
}

// splitCSV splits a comma-separated list and trims spaces, ignoring empties.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
