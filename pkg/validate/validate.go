// Package validate provides the shared validation rule engine. Entity
// validators declare ordered (failed, field, message) rules; Evaluate collects
// every failing rule into a single field-tagged boundary error. Rules are
// plain structs, so validators stay free of reflection and each failure is
// attributable to a declared rule.
package validate

import (
	dErrors "idecide/pkg/domain-errors"
)

// Rule is one named validation check. Failed is the already-evaluated
// condition; the engine never short-circuits, so every failing rule lands in
// the aggregated error in declaration order.
type Rule struct {
	Field   string
	Failed  bool
	Message string
}

// Fail builds a failing-or-passing rule from a condition.
func Fail(field string, failed bool, message string) Rule {
	return Rule{Field: field, Failed: failed, Message: message}
}

// NotEmpty fails when the value is the empty string.
func NotEmpty(field, value string) Rule {
	return Rule{Field: field, Failed: value == "", Message: "must not be empty"}
}

// MaxLen fails when the value exceeds max characters.
func MaxLen(field, value string, max int) Rule {
	return Rule{Field: field, Failed: len(value) > max, Message: "exceeds maximum length"}
}

// Evaluate runs every rule and, if at least one failed, returns a single
// boundary error with the given message carrying the failures in rule order.
// An error with zero attached fields is never produced.
func Evaluate(message string, rules ...Rule) error {
	var fields []dErrors.FieldError
	for _, r := range rules {
		if r.Failed {
			fields = append(fields, dErrors.FieldError{Field: r.Field, Message: r.Message})
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return dErrors.WithFields(dErrors.CodeValidation, message, fields)
}
