// Package expression evaluates the JavaScript predicates used by edge conditions and condition nodes.
package expression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	gocache "github.com/patrickmn/go-cache"
)

const (
	programTTL     = 30 * time.Minute
	programCleanup = time.Hour
)

// programs holds compiled expressions by source. A goja.Program can be shared by runtimes.
var programs = gocache.New(programTTL, programCleanup)

// Error is returned for expressions that do not compile or throw while running.
type Error struct {
	Expression string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Expression, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Evaluate runs expr with every env key bound as a global and returns its JavaScript truthiness.
// An empty expression is true.
func Evaluate(ctx context.Context, expr string, env map[string]any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}

	value, err := run(ctx, expr, env)
	if err != nil {
		return false, err
	}

	return value.ToBoolean(), nil
}

// Value runs expr like Evaluate and exports the result as a Go value.
func Value(ctx context.Context, expr string, env map[string]any) (any, error) {
	value, err := run(ctx, expr, env)
	if err != nil {
		return nil, err
	}

	return value.Export(), nil
}

// Compile reports syntax errors without running anything.
func Compile(expr string) error {
	_, err := compile(expr)

	return err
}

func compile(expr string) (*goja.Program, error) {
	if cached, ok := programs.Get(expr); ok {
		if program, ok := cached.(*goja.Program); ok {
			return program, nil
		}
	}

	program, err := goja.Compile("expression", expr, true)
	if err != nil {
		return nil, &Error{Expression: expr, Err: err}
	}

	programs.SetDefault(expr, program)

	return program, nil
}

func run(ctx context.Context, expr string, env map[string]any) (goja.Value, error) {
	program, err := compile(expr)
	if err != nil {
		return nil, err
	}

	// goja runtimes are not goroutine-safe, so each evaluation gets its own.
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	for name, value := range env {
		if err := vm.Set(name, value); err != nil {
			return nil, &Error{Expression: expr, Err: err}
		}
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	value, err := vm.RunProgram(program)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return nil, fmt.Errorf("expression interrupted: %w", ctx.Err())
		}

		return nil, &Error{Expression: expr, Err: err}
	}

	return value, nil
}
