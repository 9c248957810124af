package templates

import (
	"encoding/json"
	"strings"

	"github.com/flosch/pongo2/v6"
)

func registerDefaultFilters() {
	if !pongo2.FilterExists("json") {
		_ = pongo2.RegisterFilter("json", filterJSON)
	}
	if !pongo2.FilterExists("trim") {
		_ = pongo2.RegisterFilter("trim", filterTrim)
	}
}

// filterJSON encodes the input as JSON; an integer parameter indents.
func filterJSON(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	var (
		b   []byte
		err error
	)
	if param != nil && param.IsInteger() && param.Integer() > 0 {
		b, err = json.MarshalIndent(in.Interface(), "", strings.Repeat(" ", param.Integer()))
	} else {
		b, err = json.Marshal(in.Interface())
	}
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:json", OrigError: err}
	}
	return pongo2.AsValue(string(b)), nil
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.Len() <= 0 {
		return pongo2.AsValue(""), nil
	}
	return pongo2.AsValue(strings.TrimSpace(in.String())), nil
}
