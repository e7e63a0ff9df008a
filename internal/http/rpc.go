package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/example/hrms/internal/application"
)

// callFunc executes a procedure with its raw JSON input.
type callFunc func(ctx context.Context, principal application.Principal, input json.RawMessage) (any, error)

// Procedure describes one callable operation.
type Procedure struct {
	Name string
	// Public procedures run without a session.
	Public bool
	// Query procedures may also be called with GET.
	Query bool
	// Limited procedures are subject to the per-client login limiter.
	Limited bool
	call    callFunc
}

// Registry maps procedure names to their implementations.
type Registry struct {
	procedures map[string]Procedure
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{procedures: make(map[string]Procedure)}
}

func (r *Registry) add(p Procedure) {
	if _, exists := r.procedures[p.Name]; exists {
		panic(fmt.Sprintf("procedure %s registered twice", p.Name))
	}
	r.procedures[p.Name] = p
}

// Lookup returns the named procedure.
func (r *Registry) Lookup(name string) (Procedure, bool) {
	if r == nil {
		return Procedure{}, false
	}
	p, ok := r.procedures[name]
	return p, ok
}

// Names lists the registered procedures in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call authorizes and executes a procedure.
func (r *Registry) Call(ctx context.Context, name string, principal application.Principal, input json.RawMessage) (any, error) {
	p, ok := r.Lookup(name)
	if !ok {
		return nil, errUnknownProcedure
	}
	if !p.Public && !principal.Authenticated() {
		return nil, application.ErrUnauthenticated
	}
	return p.call(ctx, principal, input)
}

// decodeInput unmarshals raw into a value of type T. An absent or null input yields the
// zero value.
func decodeInput[T any](raw json.RawMessage) (T, error) {
	var in T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return in, nil
	}
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return in, errBadRequestBody
	}
	return in, nil
}

// withInput adapts a service method taking a typed input.
func withInput[In, Out any](fn func(context.Context, application.Principal, In) (Out, error)) callFunc {
	return func(ctx context.Context, principal application.Principal, raw json.RawMessage) (any, error) {
		in, err := decodeInput[In](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, principal, in)
	}
}

// noInput adapts a service method that only needs the caller.
func noInput[Out any](fn func(context.Context, application.Principal) (Out, error)) callFunc {
	return func(ctx context.Context, principal application.Principal, _ json.RawMessage) (any, error) {
		return fn(ctx, principal)
	}
}

type idInput struct {
	ID string `json:"id"`
}

// withID adapts a service method addressed by a single identifier.
func withID[Out any](fn func(context.Context, application.Principal, string) (Out, error)) callFunc {
	return withInput(func(ctx context.Context, principal application.Principal, in idInput) (Out, error) {
		return fn(ctx, principal, in.ID)
	})
}

// okResult is returned by procedures whose service method has no result value.
type okResult struct {
	OK bool `json:"ok"`
}

func done(err error) (okResult, error) {
	if err != nil {
		return okResult{}, err
	}
	return okResult{OK: true}, nil
}

// withInputErr adapts a service method taking a typed input and returning only an error.
func withInputErr[In any](fn func(context.Context, application.Principal, In) error) callFunc {
	return withInput(func(ctx context.Context, principal application.Principal, in In) (okResult, error) {
		return done(fn(ctx, principal, in))
	})
}

// withIDErr adapts an identifier-addressed service method returning only an error.
func withIDErr(fn func(context.Context, application.Principal, string) error) callFunc {
	return withInput(func(ctx context.Context, principal application.Principal, in idInput) (okResult, error) {
		return done(fn(ctx, principal, in.ID))
	})
}
