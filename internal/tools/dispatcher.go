package tools

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/wire"
)

// Handler executes one tool call. The returned value must be
// JSON-serializable; a returned error becomes a structured error payload for
// the backend, never a session failure.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Registry maps function names to handlers and their advertised definitions.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	defs     []wire.ToolDef
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under def.Name. Later registrations replace earlier
// ones with the same name.
func (r *Registry) Register(def wire.ToolDef, h Handler) {
	if def.Type == "" {
		def.Type = "function"
	}
	r.mu.Lock()
	if _, exists := r.handlers[def.Name]; !exists {
		r.defs = append(r.defs, def)
	}
	r.handlers[def.Name] = h
	r.mu.Unlock()
}

// Definitions returns the tool list for the session handshake.
func (r *Registry) Definitions() []wire.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.ToolDef, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Dispatcher resolves backend function-call requests against the registry and
// returns results into the conversation.
type Dispatcher struct {
	Registry *Registry
	Timeout  time.Duration
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{Registry: reg, Timeout: 15 * time.Second}
}

// Dispatch runs the named handler and sends its output followed by a
// response-continue through send. Unknown names are ignored without output.
// Handler failures become an {"error": message} result.
func (d *Dispatcher) Dispatch(ctx context.Context, call wire.FunctionCall, send func([]byte) error) {
	h, ok := d.Registry.lookup(call.Name)
	if !ok {
		log.Printf("ignoring unknown tool call: %s", call.Name)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	result, err := h(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		log.Printf("tool %s failed: %v", call.Name, err)
		result = map[string]string{"error": err.Error()}
	}
	out, merr := json.Marshal(result)
	if merr != nil {
		out, _ = json.Marshal(map[string]string{"error": merr.Error()})
	}

	if err := send(wire.FunctionOutput(call.CallID, string(out))); err != nil {
		log.Printf("tool %s: failed to deliver output: %v", call.Name, err)
		return
	}
	if err := send(wire.ResponseCreate()); err != nil {
		log.Printf("tool %s: failed to resume response: %v", call.Name, err)
	}
}
