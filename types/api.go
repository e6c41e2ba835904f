package types

import "context"

//go:generate mockgen -source=api.go -destination=resolver_mock.go -package=types

// Resolver resolves the external data requests of a run. It is the only
// collaborator the VM calls out to and is invoked once per run, between the
// prepare and execute phases. It must return exactly one Resolution per
// Request, in request order.
type Resolver interface {
	Resolve(ctx context.Context, requests []Request) ([]Resolution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, requests []Request) ([]Resolution, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, requests []Request) ([]Resolution, error) {
	return f(ctx, requests)
}

// StaticResolver answers every request with the resolution at the same index.
// It is used by tooling replaying recorded reports.
type StaticResolver []Resolution

// Resolve implements Resolver.
func (s StaticResolver) Resolve(_ context.Context, requests []Request) ([]Resolution, error) {
	if len(s) < len(requests) {
		return s, nil
	}
	return s[:len(requests)], nil
}
