// Package policy gates assistant tool dispatch with OPA. The engine decides
// per call whether the acting user may run a function, based on the user's
// role and the function being invoked. Policies are plain Rego so operators
// can override the built-in rules with a file of their own.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"ledgermate-backend/pkg/logger"
)

// Decisions the policy can return.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// DefaultModule is the built-in tool policy. Viewers are read-only: any
// function that writes accounting data is blocked for them.
const DefaultModule = `
package assistant_tools

default decision = "allow"

write_function {
	startswith(input.function, "create_")
}

write_function {
	startswith(input.function, "update_")
}

write_function {
	startswith(input.function, "mark_")
}

write_function {
	startswith(input.function, "delete_")
}

decision = "block" {
	input.role == "viewer"
	write_function
}
`

// Input carries the facts a policy may reason about for one tool call.
type Input struct {
	Function string
	Registry string
	Role     string
}

// Engine evaluates tool-call policies against a prepared Rego query.
type Engine struct {
	query rego.PreparedEvalQuery
	log   *logger.Logger
}

// New prepares an engine from Rego module source. The module must define
// data.assistant_tools.decision.
func New(ctx context.Context, module string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.assistant_tools.decision"),
		rego.Module("assistant_tools.rego", module),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare tool policy: %w", err)
	}

	return &Engine{
		query: query,
		log:   logger.Get().WithComponent("policy"),
	}, nil
}

// NewFromFile prepares an engine from a Rego file, or from DefaultModule when
// path is empty.
func NewFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return New(ctx, DefaultModule)
	}
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool policy file: %w", err)
	}
	return New(ctx, string(module))
}

// Decide returns the policy decision for one tool call. Policy evaluation
// failures and unexpected result shapes degrade to allow so a broken policy
// cannot take the assistant down; they are logged instead.
func (e *Engine) Decide(ctx context.Context, in Input) string {
	input := map[string]interface{}{
		"function": in.Function,
		"registry": in.Registry,
		"role":     in.Role,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.log.Warn("tool policy evaluation failed, allowing call",
			"function", in.Function, "error", err.Error())
		return DecisionAllow
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow
	}

	decision, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		e.log.Warn("tool policy returned a non-string decision, allowing call",
			"function", in.Function)
		return DecisionAllow
	}
	return decision
}
