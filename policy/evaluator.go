package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/MrEthical07/goRoam"
)

const (
	eligibleQuery = "data.goroam.roaming.eligible"
	elevatedQuery = "data.goroam.roaming.elevated"
)

// DefaultPolicy is used when no module is supplied.
const DefaultPolicy = `package goroam.roaming

default eligible := false
default elevated := false

eligible if {
	input.identity.network_admin
}

eligible if {
	"network_admin" in input.identity.roles
}

elevated if {
	input.identity.network_admin
}
`

// ErrNoResult is returned when a query produces a non-boolean value.
var ErrNoResult = errors.New("policy query returned no boolean result")

// Evaluator holds the prepared eligibility and elevation queries. Safe for
// concurrent use.
type Evaluator struct {
	eligible rego.PreparedEvalQuery
	elevated rego.PreparedEvalQuery
}

// New compiles modules (file name to Rego source) and prepares both queries.
// With no modules it uses [DefaultPolicy].
func New(ctx context.Context, modules map[string]string) (*Evaluator, error) {
	if len(modules) == 0 {
		modules = map[string]string{"roaming.rego": DefaultPolicy}
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}

	eligible, err := rego.New(rego.Query(eligibleQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare eligibility query: %w", err)
	}
	elevated, err := rego.New(rego.Query(elevatedQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare elevation query: %w", err)
	}
	return &Evaluator{eligible: eligible, elevated: elevated}, nil
}

// Eligible reports whether identity may roam. It satisfies
// [goRoam.EligibilityFunc] for [goRoam.Builder.WithEligibility].
func (e *Evaluator) Eligible(ctx context.Context, identity goRoam.Identity) (bool, error) {
	return eval(ctx, e.eligible, identity)
}

// Elevated reports whether identity may unlink accounts it does not own. It
// satisfies [goRoam.EligibilityFunc] for [goRoam.Builder.WithNetworkElevation].
func (e *Evaluator) Elevated(ctx context.Context, identity goRoam.Identity) (bool, error) {
	return eval(ctx, e.elevated, identity)
}

func eval(ctx context.Context, q rego.PreparedEvalQuery, identity goRoam.Identity) (bool, error) {
	rs, err := q.Eval(ctx, rego.EvalInput(input(identity)))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	// An undefined rule denies.
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, ErrNoResult
	}
	return v, nil
}

func input(identity goRoam.Identity) map[string]interface{} {
	roles := make([]interface{}, 0, len(identity.Roles))
	for _, r := range identity.Roles {
		roles = append(roles, r)
	}
	return map[string]interface{}{
		"identity": map[string]interface{}{
			"id":            identity.ID,
			"login":         identity.Login,
			"email":         identity.Email,
			"site_id":       identity.SiteID,
			"main_id":       identity.MainID,
			"linked":        identity.Linked(),
			"roles":         roles,
			"network_admin": identity.NetworkAdmin,
		},
	}
}
