package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const policyPackage = "bridge.provider_attach"

// Default Rego policy: providers relate by exact match, shared protocol
// family, or substring containment; unrelated providers still attach
// (account consolidation over strict isolation). Tightening the latter is a
// one-line change: `default attach_unrelated = false`.
const defaultRegoPolicy = `package bridge.provider_attach

default related = false
default attach_unrelated = true
default attach = false

related if {
	some r in input.requested
	some e in input.existing
	r == e
}

related if {
	some rf in input.requested_families
	some ef in input.existing_families
	rf == ef
}

related if {
	some r in input.requested
	some e in input.existing
	contains(e, r)
}

related if {
	some r in input.requested
	some e in input.existing
	contains(r, e)
}

attach if related

attach if {
	not related
	attach_unrelated
}
`

// OPAEvaluator evaluates provider-attachment policy using OPA Rego.
type OPAEvaluator struct {
	compiler *ast.Compiler
}

// NewOPAEvaluator returns an OPA-based evaluator for the given policy text.
// Pass "" to use the default policy.
func NewOPAEvaluator(policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"provider_attach.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile attach policy: %w", err)
	}
	return &OPAEvaluator{compiler: compiler}, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can evaluate the
// compiled policy. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.EvaluateAttach(ctx, []string{"saml"}, []string{"saml"})
	return err
}

// EvaluateAttach decides relatedness and attachability for the requested
// providers against the mapping's existing providers.
func (e *OPAEvaluator) EvaluateAttach(ctx context.Context, requested, existing []string) (AttachResult, error) {
	input := map[string]interface{}{
		"requested":          normalizeAll(requested),
		"existing":           normalizeAll(existing),
		"requested_families": familiesOfAll(requested),
		"existing_families":  familiesOfAll(existing),
	}

	out := AttachResult{}
	related, err := e.queryBool(ctx, "related", input)
	if err != nil {
		return out, err
	}
	attach, err := e.queryBool(ctx, "attach", input)
	if err != nil {
		return out, err
	}
	out.Related = related
	out.Attach = attach
	return out, nil
}

func (e *OPAEvaluator) queryBool(ctx context.Context, rule string, input map[string]interface{}) (bool, error) {
	q := rego.New(
		rego.Query(fmt.Sprintf("data.%s.%s", policyPackage, rule)),
		rego.Compiler(e.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval %s: %w", rule, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("policy query %s returned no result", rule)
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy query %s returned non-boolean", rule)
	}
	return v, nil
}
