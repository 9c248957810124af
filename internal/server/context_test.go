package server

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPickKey(t *testing.T) {
	cases := []struct {
		name   string
		pick   string
		data   map[string]any
		want   string
		wantOK bool
	}{
		{"single key", "", map[string]any{"items": 1}, "items", true},
		{"pick present", "b", map[string]any{"a": 1, "b": 2}, "b", true},
		{"pick missing with one key", "x", map[string]any{"a": 1}, "a", true},
		{"pick missing with many keys", "x", map[string]any{"a": 1, "b": 2}, "", false},
		{"many keys no pick", "", map[string]any{"a": 1, "b": 2}, "", false},
		{"empty data", "a", map[string]any{}, "", false},
		{"nil data", "", nil, "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := PickKey(c.pick, c.data)
			if got != c.want || ok != c.wantOK {
				t.Fatalf("PickKey(%q) = %q, %v; want %q, %v", c.pick, got, ok, c.want, c.wantOK)
			}
		})
	}
}

func TestBuildContext(t *testing.T) {
	list := []any{1, 2, 3}
	data := map[string]any{"items": list, "count": 3}

	cases := []struct {
		name string
		root string
		data map[string]any
		want map[string]any
	}{
		{
			name: "no root",
			data: data,
			want: map[string]any{"gql": data},
		},
		{
			name: "list root",
			root: "items",
			data: data,
			want: map[string]any{"gql": data, "items": list, "root": list},
		},
		{
			name: "scalar root",
			root: "count",
			data: data,
			want: map[string]any{"gql": data, "count": 3, "root": 3},
		},
		{
			name: "typed slice root",
			root: "ids",
			data: map[string]any{"ids": []string{"a"}},
			want: map[string]any{"gql": map[string]any{"ids": []string{"a"}}, "ids": []string{"a"}, "root": []string{"a"}, "items": []string{"a"}},
		},
		{
			name: "root named gql overwrites data",
			root: "gql",
			data: map[string]any{"gql": "x"},
			want: map[string]any{"gql": "x", "root": "x"},
		},
		{
			name: "root named root",
			root: "root",
			data: map[string]any{"root": map[string]any{"id": 1}},
			want: map[string]any{"gql": map[string]any{"root": map[string]any{"id": 1}}, "root": map[string]any{"id": 1}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if diff := cmp.Diff(c.want, BuildContext(c.data, c.root)); diff != "" {
				t.Fatalf("context mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
