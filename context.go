package tcc

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// TransactionContext is the propagated transaction state carried between the
// initiator and remote participants: the identifier, the phase the initiator
// is driving, and an open attachment mapping the core does not interpret.
type TransactionContext struct {
	Xid         Xid            `json:"xid"`
	Status      Status         `json:"status"`
	Attachments map[string]any `json:"attachments,omitempty"`
}

// DefaultEditorName is the name of the editor registered by default in every
// EditorRegistry.
const DefaultEditorName = "default"

// ContextCarrier is implemented by call argument types that can carry a
// TransactionContext across a service boundary. Embed ContextHolder to get
// an implementation for free.
type ContextCarrier interface {
	TransactionContext() *TransactionContext
	SetTransactionContext(*TransactionContext)
}

// ContextHolder is a ready-made ContextCarrier for embedding into call
// argument structs.
type ContextHolder struct {
	Context *TransactionContext `json:"transaction_context,omitempty"`
}

// TransactionContext implements the ContextCarrier interface.
func (h *ContextHolder) TransactionContext() *TransactionContext {
	return h.Context
}

// SetTransactionContext implements the ContextCarrier interface.
func (h *ContextHolder) SetTransactionContext(txc *TransactionContext) {
	h.Context = txc
}

// ContextEditor is a pluggable strategy for reading and writing a
// TransactionContext on a call's arguments. The core only needs Get and Set;
// how the context is physically carried (struct field, header map, ...) is
// up to the editor.
type ContextEditor interface {
	Name() string
	Get(args any) (*TransactionContext, bool)
	Set(args any, txc *TransactionContext) error
}

// defaultEditor reads and writes the context through the ContextCarrier
// interface.
type defaultEditor struct{}

func (defaultEditor) Name() string {
	return DefaultEditorName
}

func (defaultEditor) Get(args any) (*TransactionContext, bool) {
	carrier, ok := args.(ContextCarrier)
	if !ok {
		return nil, false
	}
	txc := carrier.TransactionContext()
	return txc, txc != nil
}

func (defaultEditor) Set(args any, txc *TransactionContext) error {
	carrier, ok := args.(ContextCarrier)
	if !ok {
		return fmt.Errorf("arguments of type %T cannot carry a transaction context", args)
	}
	carrier.SetTransactionContext(txc)
	return nil
}

// EditorRegistry is a registry of named context editors, built at startup
// and passed by reference into the interceptors. Participants persist the
// editor name so replays can resolve the same carriage strategy.
type EditorRegistry struct {
	editors *xsync.MapOf[string, ContextEditor]
}

// NewEditorRegistry creates a registry pre-populated with the default
// editor.
func NewEditorRegistry() *EditorRegistry {
	r := &EditorRegistry{
		editors: xsync.NewMapOf[string, ContextEditor](),
	}
	r.editors.Store(DefaultEditorName, defaultEditor{})
	return r
}

// Register adds an editor to the registry.
func (r *EditorRegistry) Register(editor ContextEditor) error {
	if _, ok := r.editors.Load(editor.Name()); ok {
		return fmt.Errorf("context editor with name %q already registered", editor.Name())
	}
	r.editors.Store(editor.Name(), editor)
	return nil
}

// Get retrieves an editor by name. The empty name resolves to the default
// editor.
func (r *EditorRegistry) Get(name string) (ContextEditor, error) {
	if name == "" {
		name = DefaultEditorName
	}
	editor, ok := r.editors.Load(name)
	if !ok {
		return nil, fmt.Errorf("context editor %q not registered", name)
	}
	return editor, nil
}
