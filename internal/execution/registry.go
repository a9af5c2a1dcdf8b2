package execution

import (
	"sort"
	"sync"

	dErrors "loom/pkg/domain-errors"
)

// Registry maps intent types to handlers. It is an injected collaborator,
// not package-level state, so two managers can carry disjoint handler sets.
// Registration is validated eagerly; dispatch never discovers a bad entry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to an intent type.
//
// Errors: CodeInvalidInput for an empty type or nil handler, CodeConflict
// for a duplicate type.
func (r *Registry) Register(intentType string, handler Handler) error {
	if intentType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "intent type cannot be empty")
	}
	if handler == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[intentType]; exists {
		return dErrors.New(dErrors.CodeConflict, "handler already registered for intent type "+intentType)
	}
	r.handlers[intentType] = handler
	return nil
}

// Get returns the handler for an intent type.
func (r *Registry) Get(intentType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[intentType]
	return handler, ok
}

// Types lists registered intent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
