// Package framework describes the execution framework that builds and runs
// the resolved test matrix, and provides Plan, an implementation that
// records the matrix and hands it to an external runner command.
package framework

import (
	"context"
	"errors"

	"simmatrix/internal/generics"
	"simmatrix/internal/toolopts"
)

// ErrTestBenchNotFound is returned by TestBench when no registered source
// file of the library declares the entity.
var ErrTestBenchNotFound = errors.New("test bench not found")

// Framework is the build-and-run collaborator the matrix is registered with.
type Framework interface {
	// AddSourceFile registers path as a compile unit of library with the
	// given compile options. Libraries are created on first use.
	AddSourceFile(library, path string, opts toolopts.Options) error

	// TestBench returns the test bench for entity in library.
	TestBench(library, entity string) (TestBench, error)

	// SetGlobalOptions sets run-wide simulation options.
	SetGlobalOptions(opts toolopts.Options) error

	// Run builds and executes everything registered so far. args are passed
	// through unmodified from the command line.
	Run(ctx context.Context, args []string) error
}

// TestBench is a discovered top-level test bench.
type TestBench interface {
	Library() string
	Name() string

	// AddConfig registers one runnable configuration of the bench.
	AddConfig(name string, params generics.Params, opts toolopts.Options) error
}
