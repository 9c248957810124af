// Package demo registers a small graph-gophers schema under "demo.schema" so
// the server can be tried without wiring an application schema.
package demo

import (
	"context"
	"fmt"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"

	executor "github.com/hanpama/gqlhx/internal/executor"
	registry "github.com/hanpama/gqlhx/internal/registry"
)

// Name is the registry path of the demo schema.
const Name = "demo.schema"

const sdl = `
	schema {
		query: Query
	}

	type Query {
		items: [Int!]!
		users(prefix: String): [User!]!
		user(id: ID!): User
		hello(name: String): String!
	}

	type User {
		id: ID!
		name: String!
		email: String!
	}
`

type user struct {
	id    string
	name  string
	email string
}

var users = []user{
	{id: "1", name: "Ada Lovelace", email: "ada@example.com"},
	{id: "2", name: "Grace Hopper", email: "grace@example.com"},
	{id: "3", name: "Alan Turing", email: "alan@example.com"},
}

type resolver struct{}

func (resolver) Items() []int32 { return []int32{1, 2, 3} }

func (resolver) Users(args struct{ Prefix *string }) []*userResolver {
	out := make([]*userResolver, 0, len(users))
	for i := range users {
		if args.Prefix != nil && !strings.HasPrefix(users[i].name, *args.Prefix) {
			continue
		}
		out = append(out, &userResolver{u: users[i]})
	}
	return out
}

func (resolver) User(args struct{ ID graphql.ID }) (*userResolver, error) {
	for i := range users {
		if users[i].id == string(args.ID) {
			return &userResolver{u: users[i]}, nil
		}
	}
	return nil, fmt.Errorf("user %s not found", args.ID)
}

func (resolver) Hello(ctx context.Context, args struct{ Name *string }) string {
	name := "world"
	if args.Name != nil && *args.Name != "" {
		name = *args.Name
	}
	return "Hello, " + name + "!"
}

type userResolver struct{ u user }

func (r *userResolver) ID() graphql.ID { return graphql.ID(r.u.id) }
func (r *userResolver) Name() string   { return r.u.name }
func (r *userResolver) Email() string  { return r.u.email }

// Schema parses the demo schema.
func Schema() (executor.GraphGophers, error) {
	s, err := graphql.ParseSchema(sdl, &resolver{})
	if err != nil {
		return executor.GraphGophers{}, fmt.Errorf("demo: %w", err)
	}
	return executor.GraphGophers{Schema: s}, nil
}

// Register adds the demo schema to reg.
func Register(reg *registry.Registry) error {
	s, err := Schema()
	if err != nil {
		return err
	}
	return reg.Register("demo", "schema", s)
}

func init() {
	if err := Register(registry.Default); err != nil {
		panic(err)
	}
}
