package executor

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is wrapped by ExecutionError when a handle has no recognized
// execution capability or a Callable returns an unrecognized shape.
var ErrUnsupported = errors.New("unsupported schema/executor")

// ExecutionError reports that a schema handle could not be executed.
type ExecutionError struct {
	Handle any
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executor: %v (handle %T)", e.Err, e.Handle)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Params carries one GraphQL request.
type Params struct {
	Query         string
	Variables     map[string]any
	OperationName string
}

// SyncExecutable is implemented by schemas exposing synchronous execution.
type SyncExecutable interface {
	ExecuteSync(ctx context.Context, p Params) (*Response, error)
}

// GenericExecutable is implemented by schemas exposing a generic execute
// entry point.
type GenericExecutable interface {
	Execute(ctx context.Context, p Params) (*Response, error)
}

// Callable is a schema that is executed by calling it. It returns either a
// Pair or a map[string]any holding the data.
type Callable func(ctx context.Context, p Params) (any, error)

// Kind identifies which capability an Executable was bound to.
type Kind uint8

const (
	KindSync Kind = iota + 1
	KindGeneric
	KindCallable
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindGeneric:
		return "generic"
	case KindCallable:
		return "callable"
	}
	return "unknown"
}

// Executable is a schema handle bound to one execution variant.
type Executable struct {
	kind   Kind
	handle any
	run    func(ctx context.Context, p Params) (Result, error)
}

// Bind selects the execution variant for handle.
func Bind(handle any) (*Executable, error) {
	switch h := handle.(type) {
	case *Executable:
		if h == nil {
			break
		}
		return h, nil
	case SyncExecutable:
		return &Executable{kind: KindSync, handle: handle, run: func(ctx context.Context, p Params) (Result, error) {
			return fromResponse(h.ExecuteSync(ctx, p))
		}}, nil
	case GenericExecutable:
		return &Executable{kind: KindGeneric, handle: handle, run: func(ctx context.Context, p Params) (Result, error) {
			return fromResponse(h.Execute(ctx, p))
		}}, nil
	case Callable:
		if h != nil {
			return bindCallable(handle, h), nil
		}
	case func(context.Context, Params) (any, error):
		if h != nil {
			return bindCallable(handle, h), nil
		}
	}
	return nil, &ExecutionError{Handle: handle, Err: ErrUnsupported}
}

func bindCallable(handle any, fn Callable) *Executable {
	return &Executable{kind: KindCallable, handle: handle, run: func(ctx context.Context, p Params) (Result, error) {
		out, err := fn(ctx, p)
		if err != nil {
			return Result{}, err
		}
		switch v := out.(type) {
		case Pair:
			return normalize(v.Data, v.Errors), nil
		case *Pair:
			if v != nil {
				return normalize(v.Data, v.Errors), nil
			}
		case map[string]any:
			return normalize(v, nil), nil
		}
		return Result{}, &ExecutionError{Handle: handle, Err: fmt.Errorf("%w: callable returned %T", ErrUnsupported, out)}
	}}
}

func fromResponse(res *Response, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	if res == nil {
		return normalize(nil, nil), nil
	}
	return normalize(res.Data, res.Errors), nil
}

// Kind reports the bound variant.
func (e *Executable) Kind() Kind { return e.kind }

// Handle returns the schema handle the Executable wraps.
func (e *Executable) Handle() any { return e.handle }

// Execute runs one request. Variables may be nil.
func (e *Executable) Execute(ctx context.Context, p Params) (Result, error) {
	return e.run(ctx, p)
}

// Execute binds handle and runs p against it.
func Execute(ctx context.Context, handle any, p Params) (Result, error) {
	exec, err := Bind(handle)
	if err != nil {
		return Result{}, err
	}
	return exec.Execute(ctx, p)
}
