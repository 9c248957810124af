// Package executor normalizes the calling conventions of GraphQL execution
// libraries into a single (data, errors) result.
//
// # Variants
//
// A schema handle supplied by the application is bound once into an
// Executable. Binding inspects the handle in a fixed order and the first
// matching capability wins:
//
//  1. SyncExecutable: the handle has ExecuteSync.
//  2. GenericExecutable: the handle has Execute.
//  3. Callable: the handle is an executor.Callable or a plain
//     func(context.Context, Params) (any, error). The function may return a
//     Pair or a map[string]any; a map implies no errors.
//
// Anything else fails with an ExecutionError wrapping ErrUnsupported. A handle
// exposing both ExecuteSync and Execute binds as KindSync.
//
// # Results
//
// Result.Data and Result.Errors are never nil. Errors reported by the schema
// are part of the Result; Go errors returned by the library are returned as is
// and are not retried.
//
// GraphGophers adapts a github.com/graph-gophers/graphql-go schema to the
// SyncExecutable variant.
package executor
