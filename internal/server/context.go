package server

import "reflect"

// Render context keys.
const (
	KeyData   = "gql"
	KeyRoot   = "root"
	KeyItems  = "items"
	KeyErrors = "errors"
)

// PickKey chooses the root key of data: pick when data has it, otherwise the
// only key. It reports false when data has several keys and no usable pick.
func PickKey(pick string, data map[string]any) (string, bool) {
	if pick != "" {
		if _, ok := data[pick]; ok {
			return pick, true
		}
	}
	if len(data) == 1 {
		for k := range data {
			return k, true
		}
	}
	return "", false
}

// BuildContext flattens data for templates. The full data is under "gql";
// with a root key its value is also under the key itself and "root", and
// under "items" when it is a list.
func BuildContext(data map[string]any, rootKey string) map[string]any {
	ctx := map[string]any{KeyData: data}
	if rootKey == "" {
		return ctx
	}
	root := data[rootKey]
	ctx[rootKey] = root
	ctx[KeyRoot] = root
	if isList(root) {
		ctx[KeyItems] = root
	}
	return ctx
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
