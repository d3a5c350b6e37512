package aclengine

import (
	"testing"

	"github.com/webdis-go/webdis-go/internal/config"
)

func TestAdmitEmptyRulesAllowsEverything(t *testing.T) {
	e := New(nil)
	if !e.Admit("FLUSHALL", Identity{}) {
		t.Error("expected empty rule list to default-allow")
	}
}

func TestAdmitDefaultDenyWithNoMatch(t *testing.T) {
	e := New([]config.ACLRule{{Verb: "GET", Enabled: true}})
	if e.Admit("SET", Identity{}) {
		t.Error("expected default deny when no rule matches")
	}
}

func TestAdmitFirstMatchWins(t *testing.T) {
	e := New([]config.ACLRule{
		{Verb: "CONFIG_*", Disabled: true},
		{Verb: "*", Enabled: true},
	})
	if e.Admit("CONFIG_SET", Identity{}) {
		t.Error("expected CONFIG_SET to be denied by the first rule")
	}
	if !e.Admit("GET", Identity{}) {
		t.Error("expected GET to be allowed by the fallback rule")
	}
}

func TestAdmitCIDR(t *testing.T) {
	e := New([]config.ACLRule{{CIDR: "10.0.0.0/8", Enabled: true}})
	if !e.Admit("GET", Identity{RemoteAddr: "10.1.2.3"}) {
		t.Error("expected 10.1.2.3 to match 10.0.0.0/8")
	}
	if e.Admit("GET", Identity{RemoteAddr: "192.168.1.1"}) {
		t.Error("expected 192.168.1.1 to not match 10.0.0.0/8")
	}
}

func TestAdmitBasicAuth(t *testing.T) {
	e := New([]config.ACLRule{{HTTPBasicAuth: "admin:secret", Enabled: true}})
	if !e.Admit("GET", Identity{BasicAuth: "admin:secret"}) {
		t.Error("expected matching basic auth to be allowed")
	}
	if e.Admit("GET", Identity{BasicAuth: "guest:guest"}) {
		t.Error("expected non-matching basic auth to fall through to default deny")
	}
}

func TestGlobMatchSingleAndDoubleStar(t *testing.T) {
	tests := []struct {
		pattern, verb string
		want          bool
	}{
		{"GET", "GET", true},
		{"GET", "SET", false},
		{"CONFIG_*", "CONFIG_SET", true},
		{"CONFIG_*", "CONFIG_GET_FOO", false},
		{"CONFIG_**", "CONFIG_GET_FOO", true},
		{"**", "ANYTHING_AT_ALL", true},
		{"*_SET", "CONFIG_SET", true},
		{"*_SET", "SET", false},
	}
	for _, tc := range tests {
		if got := verbMatch(tc.pattern, tc.verb); got != tc.want {
			t.Errorf("verbMatch(%q, %q) = %v, want %v", tc.pattern, tc.verb, got, tc.want)
		}
	}
}

func TestVerbMatchCaseInsensitive(t *testing.T) {
	if !verbMatch("config_*", "Config_Set") {
		t.Error("expected case-insensitive verb matching")
	}
}
