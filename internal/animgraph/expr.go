package animgraph

import (
	"fmt"
	"strconv"
	"strings"
)

// exprOps is ordered so that two-character operators match first.
var exprOps = []string{">=", "<=", "==", "!=", ">", "<"}

// ParseConditionExpr parses a shorthand condition expression into the
// conditions it describes. Supported forms, joined with "&&":
//   - "" (no conditions, always ready)
//   - "<param>" (parameter is non-zero or true)
//   - "!<param>" (parameter is zero or false)
//   - "<param> <op> <number|true|false>"
//   - "<param>.x|.y|.length <op> <number>" for vector2 parameters
func ParseConditionExpr(expr string) ([]Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	var out []Condition
	for _, term := range strings.Split(expr, "&&") {
		c, err := parseConditionTerm(strings.TrimSpace(term))
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", expr, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseConditionTerm(term string) (Condition, error) {
	if term == "" {
		return nil, fmt.Errorf("empty term")
	}
	for _, sym := range exprOps {
		i := strings.Index(term, sym)
		if i < 0 {
			continue
		}
		lhs := strings.TrimSpace(term[:i])
		rhs := strings.TrimSpace(term[i+len(sym):])
		if lhs == "" || rhs == "" {
			return nil, fmt.Errorf("malformed comparison %q", term)
		}
		op, _ := ParseCompareOp(sym)
		value, err := parseExprNumber(rhs)
		if err != nil {
			return nil, err
		}
		if name, comp, ok := splitVectorComponent(lhs); ok {
			return NewVector2Condition(name, comp, op, value), nil
		}
		if !validIdentifier(lhs) {
			return nil, fmt.Errorf("invalid parameter name %q", lhs)
		}
		return NewParameterCondition(lhs, op, value), nil
	}

	if name, found := strings.CutPrefix(term, "!"); found {
		name = strings.TrimSpace(name)
		if !validIdentifier(name) {
			return nil, fmt.Errorf("invalid parameter name %q", name)
		}
		return NewParameterCondition(name, CompareEqual, 0), nil
	}
	if !validIdentifier(term) {
		return nil, fmt.Errorf("invalid parameter name %q", term)
	}
	return NewParameterCondition(term, CompareNotEqual, 0), nil
}

func parseExprNumber(s string) (float64, error) {
	switch s {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid operand %q", s)
	}
	return f, nil
}

func splitVectorComponent(s string) (string, Vector2Component, bool) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 {
		return "", Vector2X, false
	}
	comp, err := ParseVector2Component(s[i+1:])
	if err != nil || !validIdentifier(s[:i]) {
		return "", Vector2X, false
	}
	return s[:i], comp, true
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
