package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	graphql "github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
)

// GraphGophers exposes a graph-gophers/graphql-go schema as a SyncExecutable.
type GraphGophers struct {
	Schema *graphql.Schema
}

var _ SyncExecutable = GraphGophers{}

// ExecuteSync runs p through (*graphql.Schema).Exec and decodes the JSON data.
func (g GraphGophers) ExecuteSync(ctx context.Context, p Params) (*Response, error) {
	if g.Schema == nil {
		return nil, errors.New("executor: graph-gophers schema is nil")
	}
	res := g.Schema.Exec(ctx, p.Query, p.OperationName, p.Variables)
	out := &Response{Errors: convertQueryErrors(res.Errors)}
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, &out.Data); err != nil {
			return nil, fmt.Errorf("executor: decode graph-gophers data: %w", err)
		}
	}
	return out, nil
}

func convertQueryErrors(in []*gqlerrors.QueryError) []Error {
	if len(in) == 0 {
		return nil
	}
	out := make([]Error, 0, len(in))
	for _, qe := range in {
		if qe == nil {
			continue
		}
		out = append(out, Error{Message: qe.Message, Path: qe.Path, Extensions: qe.Extensions})
	}
	return out
}
