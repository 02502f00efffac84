package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// FieldErrors accumulates per-field validation failures so every violation
// in a request is reported together.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return strings.Join(parts, "; ")
}

func (e FieldErrors) add(field, message string) {
	if _, taken := e[field]; !taken {
		e[field] = message
	}
}

// Operation distinguishes a first save of a request from a change to an
// existing one.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
)

// ValidateAccessRequest checks an incoming request change against the
// existing record. A nil existing is a create. Returns nil when valid.
func ValidateAccessRequest(op Operation, existing, incoming *AccessRequest) FieldErrors {
	errs := FieldErrors{}

	if incoming.Requestor == nil || incoming.Requestor.Username == "" {
		if existing == nil || existing.Requestor == nil {
			errs.add("requestor", "a requestor is required")
		}
	}
	if incoming.ProductEnvironment == nil || incoming.ProductEnvironment.ID == "" {
		if existing == nil || existing.ProductEnvironment == nil {
			errs.add("productEnvironment", "a target environment is required")
		}
	}

	env := incoming.ProductEnvironment
	if env == nil && existing != nil {
		env = existing.ProductEnvironment
	}
	if env != nil && env.Flow != "" && !KnownFlow(env.Flow) {
		errs.add("productEnvironment", fmt.Sprintf("unknown flow %q", env.Flow))
	}

	if incoming.Controls != "" {
		if _, err := ParseRequestControls(incoming.Controls); err != nil {
			errs.add("controls", err.Error())
		}
	}

	if op == OpUpdate && existing != nil {
		if existing.IsIssued && incoming.IsApproved && !existing.IsApproved {
			errs.add("isApproved", "request has already been issued")
		}
	}
	if op == OpCreate && (incoming.IsApproved || incoming.IsIssued || incoming.IsComplete) {
		errs.add("isApproved", "approval flags cannot be set on a new request")
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
