package model

import "strings"

// Report builder capabilities.
const (
	CapReportsView    = "reports:view"
	CapReportsEdit    = "reports:edit"
	CapReportsSave    = "reports:save"
	CapReportsPreview = "reports:preview"
	CapReportsDelete  = "reports:delete"
	CapCatalogView    = "catalog:view"
)

// CapabilitySet is a set of capabilities granted to a user. Keys may end in a
// ":*" wildcard (e.g. "reports:*"); "*" grants everything.
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities.
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
//
//	"*"              matches anything
//	"reports:*"      matches "reports:save"
//	"reports"        does NOT match "reports:save"
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1]
	return strings.HasPrefix(cap, prefix)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
	Invalidate(subjectID, tenantID string)
}

// PolicyEvaluator resolves capabilities from roles.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)
	Evaluate(rctx *RequestContext, capability string) (bool, error)
	Sync() error
}
