// Package aclengine evaluates the ordered list of ACL rules against a
// command + client identity (component C). First matching rule's verdict
// wins; default deny once any rule exists, default allow when the list is
// empty.
package aclengine

import (
	"net"
	"strings"

	"github.com/webdis-go/webdis-go/internal/config"
)

// Identity carries the client-supplied facts an ACL rule predicate may be
// evaluated against.
type Identity struct {
	// BasicAuth is the decoded "user:pass" string from the Authorization
	// header, or "" if none was supplied.
	BasicAuth string
	// RemoteAddr is the client's source IP (no port).
	RemoteAddr string
}

// Engine holds the immutable, read-only-after-startup rule list.
type Engine struct {
	rules []config.ACLRule
}

// New builds an Engine from the loaded configuration's ACL rule list.
func New(rules []config.ACLRule) *Engine {
	return &Engine{rules: rules}
}

// Admit evaluates verb (argv[0], any case) and id against the rule list.
func (e *Engine) Admit(verb string, id Identity) bool {
	if len(e.rules) == 0 {
		return true
	}
	for _, rule := range e.rules {
		if ruleMatches(rule, verb, id) {
			return rule.Allows()
		}
	}
	return false
}

func ruleMatches(rule config.ACLRule, verb string, id Identity) bool {
	if rule.HTTPBasicAuth != "" && rule.HTTPBasicAuth != id.BasicAuth {
		return false
	}
	if rule.CIDR != "" && !cidrContains(rule.CIDR, id.RemoteAddr) {
		return false
	}
	if rule.Verb != "" && !verbMatch(rule.Verb, verb) {
		return false
	}
	return true
}

func cidrContains(cidr, addr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return network.Contains(ip)
}

// verbMatch compares an ACL rule's verb pattern against argv[0],
// case-insensitively, supporting glob segments ("*" one token, "**"
// zero-or-more) adapted from the teacher's webhook/glob.go path matcher.
// A pattern with no wildcard degenerates to a plain equality check.
func verbMatch(pattern, verb string) bool {
	return globMatch(strings.ToUpper(pattern), strings.ToUpper(verb))
}

// globMatch matches pattern against value where both are already
// normalized to a single token (Redis verbs have no "/", so segments are
// split on "_" to let an ACL group e.g. "CONFIG_*" the way a path glob
// groups "/admin/*").
func globMatch(pattern, value string) bool {
	patternParts := strings.Split(pattern, "_")
	valueParts := strings.Split(value, "_")
	return matchParts(patternParts, 0, valueParts, 0)
}

func matchParts(pattern []string, pi int, value []string, vi int) bool {
	for pi < len(pattern) && vi < len(value) {
		seg := pattern[pi]

		if seg == "**" {
			for i := vi; i <= len(value); i++ {
				if matchParts(pattern, pi+1, value, i) {
					return true
				}
			}
			return false
		}

		if seg == "*" {
			pi++
			vi++
			continue
		}

		if seg != value[vi] {
			return false
		}
		pi++
		vi++
	}

	for pi < len(pattern) && pattern[pi] == "**" {
		pi++
	}

	return pi == len(pattern) && vi == len(value)
}
