// Package functions holds the assistant's callable tool registries. Each
// registry groups the tools of one accounting module and executes them with
// tenant scoping, argument validation and a recover boundary so a tool fault
// never takes down an exchange.
package functions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"ledgermate-backend/internal/schema"
	"ledgermate-backend/pkg/logger"
)

// MaxReadRows caps the result set of every read tool, regardless of the
// limit the model asked for.
const MaxReadRows = 200

// defaultReadRows is used when the model does not ask for a limit.
const defaultReadRows = 20

// Definition describes one callable function: its wire name, a description
// for the model, and the JSON schema of its arguments.
type Definition struct {
	Name        string
	Description string
	Parameters  *schema.Schema
}

// Result is the outcome of one function execution. Failures are values, not
// errors: validation problems, unknown names and handler faults all end up
// here with Success=false.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// EntityType and EntityID identify the row a write touched, for UI
	// deep-links and follow-up context. Empty for reads and failures.
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	// Delta is the structured entity state after a write.
	Delta json.RawMessage `json:"delta,omitempty"`
}

// Handler executes one function for one tenant. Returning an error marks the
// execution failed; the registry converts it into a Result with a safe
// message and logs the detail.
type Handler func(ctx context.Context, orgID uuid.UUID, args json.RawMessage) (Result, error)

// Function pairs a definition with its handler.
type Function struct {
	Definition Definition
	Handler    Handler
}

// Registry is an ordered, named collection of functions. The definition
// order is fixed at construction and reused verbatim for tool schemas.
type Registry struct {
	name     string
	defs     []Definition
	handlers map[string]Handler
	log      *logger.Logger
}

// NewRegistry builds a registry, rejecting duplicate function names up front
// so a shadowed handler cannot slip into production.
func NewRegistry(name string, fns []Function) (*Registry, error) {
	r := &Registry{
		name:     name,
		defs:     make([]Definition, 0, len(fns)),
		handlers: make(map[string]Handler, len(fns)),
		log:      logger.Get().WithComponent("functions." + name),
	}
	for _, fn := range fns {
		if fn.Definition.Name == "" {
			return nil, fmt.Errorf("registry %q: function with empty name", name)
		}
		if fn.Handler == nil {
			return nil, fmt.Errorf("registry %q: function %q has no handler", name, fn.Definition.Name)
		}
		if _, exists := r.handlers[fn.Definition.Name]; exists {
			return nil, fmt.Errorf("registry %q: duplicate function name %q", name, fn.Definition.Name)
		}
		r.defs = append(r.defs, fn.Definition)
		r.handlers[fn.Definition.Name] = fn.Handler
	}
	return r, nil
}

// Name returns the registry's module name.
func (r *Registry) Name() string {
	return r.name
}

// Definitions returns the function definitions in construction order.
func (r *Registry) Definitions() []Definition {
	return r.defs
}

// Has reports whether the registry owns the named function.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Execute runs the named function for the given tenant. It never returns an
// error and never panics: unknown names, bad arguments and handler faults
// all come back as a failed Result.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs string, orgID uuid.UUID) (result Result) {
	handler, ok := r.handlers[name]
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("unknown function %q", name)}
	}

	var def Definition
	for _, d := range r.defs {
		if d.Name == name {
			def = d
			break
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("function panicked", "function", name, "org_id", orgID.String(), "panic", fmt.Sprint(rec))
			result = Result{Success: false, Message: fmt.Sprintf("function %q failed unexpectedly", name)}
		}
	}()

	args, validationErr := r.prepareArgs(def, rawArgs)
	if validationErr != nil {
		return Result{Success: false, Message: fmt.Sprintf("invalid arguments for %q: %v", name, validationErr)}
	}

	result, err := handler(ctx, orgID, args)
	if err != nil {
		// Expected domain failures come back as Result values; an error here
		// is unexpected, so its detail stays in the logs.
		r.log.Error("function execution failed", "function", name, "org_id", orgID.String(), "error", err)
		return Result{Success: false, Message: fmt.Sprintf("function %q failed due to an internal error", name)}
	}
	return result
}

// prepareArgs parses the raw argument string, repairing near-JSON the model
// sometimes produces, and validates the result against the declared schema.
func (r *Registry) prepareArgs(def Definition, rawArgs string) (json.RawMessage, error) {
	raw := []byte(rawArgs)
	if len(rawArgs) > 0 && !json.Valid(raw) {
		repaired, err := jsonrepair.JSONRepair(rawArgs)
		if err != nil {
			return nil, fmt.Errorf("arguments are not valid JSON")
		}
		raw = []byte(repaired)
	}
	if def.Parameters != nil {
		if err := def.Parameters.Validate(raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// Set is the merged collection of registries the orchestrator exposes to the
// model. Definition order is registry order then per-registry order.
type Set struct {
	registries []*Registry
}

// NewSet merges registries, rejecting function names that appear in more
// than one registry.
func NewSet(registries ...*Registry) (*Set, error) {
	seen := map[string]string{}
	for _, reg := range registries {
		for _, def := range reg.Definitions() {
			if owner, dup := seen[def.Name]; dup {
				return nil, fmt.Errorf("function %q registered in both %q and %q", def.Name, owner, reg.Name())
			}
			seen[def.Name] = reg.Name()
		}
	}
	return &Set{registries: registries}, nil
}

// Definitions returns all function definitions in stable merged order.
func (s *Set) Definitions() []Definition {
	var defs []Definition
	for _, reg := range s.registries {
		defs = append(defs, reg.Definitions()...)
	}
	return defs
}

// RegistryFor resolves the registry owning the named function.
func (s *Set) RegistryFor(name string) (*Registry, bool) {
	for _, reg := range s.registries {
		if reg.Has(name) {
			return reg, true
		}
	}
	return nil, false
}

// Execute routes a call to the owning registry. An unowned name yields a
// failed Result, mirroring Registry.Execute.
func (s *Set) Execute(ctx context.Context, name string, rawArgs string, orgID uuid.UUID) Result {
	reg, ok := s.RegistryFor(name)
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("unknown function %q", name)}
	}
	return reg.Execute(ctx, name, rawArgs, orgID)
}
