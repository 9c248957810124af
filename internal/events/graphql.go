package events

import "time"

// GraphQLStart is emitted before the schema handle executes a query.
// OperationType is empty when the query could not be inspected.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
	Executor      string
}

// GraphQLFinish is emitted after execution. Err is set when the schema handle
// failed outright; Errors holds errors the schema reported.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Executor      string
	Errors        []error
	Err           error
	Duration      time.Duration
}
