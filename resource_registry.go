package tcc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// Resource is a compensable resource: a named pair of confirm and cancel
// handlers that can be replayed at any time from a persisted invocation
// descriptor. Handlers receive the propagated transaction context and the
// JSON-encoded arguments of the original try call, and must be idempotent.
type Resource interface {
	Name() string
	Confirm(ctx context.Context, txc *TransactionContext, args json.RawMessage) error
	Cancel(ctx context.Context, txc *TransactionContext, args json.RawMessage) error
}

// ResourceHandler is the signature of a confirm or cancel handler.
type ResourceHandler func(ctx context.Context, txc *TransactionContext, args json.RawMessage) error

// resourceFunc packages a pair of handler functions into a Resource.
type resourceFunc struct {
	name    string
	confirm ResourceHandler
	cancel  ResourceHandler
}

// NewResource packages confirm and cancel handler functions into a Resource
// that can be registered in a ResourceRegistry.
func NewResource(name string, confirm, cancel ResourceHandler) Resource {
	return &resourceFunc{
		name:    name,
		confirm: confirm,
		cancel:  cancel,
	}
}

func (r *resourceFunc) Name() string {
	return r.name
}

func (r *resourceFunc) Confirm(ctx context.Context, txc *TransactionContext, args json.RawMessage) error {
	if r.confirm == nil {
		return nil
	}
	return r.confirm(ctx, txc, args)
}

func (r *resourceFunc) Cancel(ctx context.Context, txc *TransactionContext, args json.RawMessage) error {
	if r.cancel == nil {
		return nil
	}
	return r.cancel(ctx, txc, args)
}

// ResourceRegistry is a registry of compensable resources shared by the
// transaction manager and the recovery job.
//
// Resources are identified by name. A persisted invocation descriptor only
// records the resource name and serialized arguments; the concrete handler
// is erased. Replaying a confirm or cancel after a restart therefore needs a
// registry built at startup so descriptors can be resolved back to handlers.
// The registry is passed by reference into the components that need it
// rather than kept as package-global state.
type ResourceRegistry struct {
	resources *xsync.MapOf[string, Resource]
}

// NewResourceRegistry creates an empty ResourceRegistry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{
		resources: xsync.NewMapOf[string, Resource](),
	}
}

// Register adds a resource to the registry.
func (r *ResourceRegistry) Register(resource Resource) error {
	if _, ok := r.resources.Load(resource.Name()); ok {
		return fmt.Errorf("resource with name %q already registered", resource.Name())
	}
	r.resources.Store(resource.Name(), resource)
	return nil
}

// Get retrieves a resource from the registry by its name.
func (r *ResourceRegistry) Get(name string) (Resource, error) {
	resource, ok := r.resources.Load(name)
	if !ok {
		return nil, fmt.Errorf("resource %q not registered", name)
	}
	return resource, nil
}
