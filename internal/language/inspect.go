package language

import "errors"

// ErrOperationNotFound is returned when the document has no operation matching
// the requested name, or several operations and no name.
var ErrOperationNotFound = errors.New("language: operation not found")

// Summary describes the operation a request will run.
type Summary struct {
	OperationName string
	OperationType Operation
	// RootFields lists top-level response names in document order.
	RootFields []string
}

// Inspect parses query and summarizes the operation selected by
// operationName.
func Inspect(query, operationName string) (Summary, error) {
	doc, err := ParseQuery(query)
	if err != nil {
		return Summary{}, err
	}
	op := SelectOperation(doc, operationName)
	if op == nil {
		return Summary{}, ErrOperationNotFound
	}
	seen := map[string]struct{}{}
	var roots []string
	collectRootFields(doc, op.SelectionSet, seen, map[string]bool{}, &roots)
	return Summary{OperationName: op.Name, OperationType: op.Operation, RootFields: roots}, nil
}

// SelectOperation picks the named operation, or the only operation when name
// is empty.
func SelectOperation(doc *QueryDocument, name string) *OperationDefinition {
	if name != "" {
		return doc.Operations.ForName(name)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return nil
}

func collectRootFields(doc *QueryDocument, set SelectionSet, seen map[string]struct{}, visited map[string]bool, out *[]string) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *Field:
			name := s.Alias
			if name == "" {
				name = s.Name
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			*out = append(*out, name)
		case *InlineFragment:
			collectRootFields(doc, s.SelectionSet, seen, visited, out)
		case *FragmentSpread:
			if visited[s.Name] {
				continue
			}
			visited[s.Name] = true
			if frag := doc.Fragments.ForName(s.Name); frag != nil {
				collectRootFields(doc, frag.SelectionSet, seen, visited, out)
			}
		}
	}
}
