package registry

import (
	"strings"
	"testing"
)

func TestEndpointsAreUniqueAndVersioned(t *testing.T) {
	seen := map[string]bool{}
	for _, ep := range Endpoints() {
		if seen[ep.Command] {
			t.Fatalf("duplicate endpoint command %q", ep.Command)
		}
		seen[ep.Command] = true
		if !strings.HasPrefix(ep.Path, "/v2/") {
			t.Fatalf("endpoint %q path is not under /v2: %s", ep.Command, ep.Path)
		}
		if ep.Analysis != AnalysisNone && len(ep.Fields) == 0 {
			t.Fatalf("endpoint %q analyses without a field", ep.Command)
		}
	}
	if len(seen) < 21 {
		t.Fatalf("expected at least 21 endpoints, got %d", len(seen))
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"trader-grades", "/v2/trader-grades", "Trader-Grades", "trader-grades/"} {
		ep, ok := Lookup(name)
		if !ok || ep.Command != "trader-grades" {
			t.Fatalf("Lookup(%q) = %+v, %v", name, ep, ok)
		}
	}
	if _, ok := Lookup("swap-quote"); ok {
		t.Fatal("did not expect unknown endpoint to resolve")
	}
}

func TestEndpointsReturnsCopy(t *testing.T) {
	items := Endpoints()
	items[0].Command = "mutated"
	if Endpoints()[0].Command == "mutated" {
		t.Fatal("expected Endpoints to return a defensive copy")
	}
}

func TestIsAllowedBaseURL(t *testing.T) {
	cases := map[string]bool{
		"https://api.tokenmetrics.com": true,
		"http://api.tokenmetrics.com":  false,
		"http://127.0.0.1:8080":        true,
		"http://localhost:9000/":       true,
		"ftp://localhost":              false,
		"not a url":                    false,
		"":                             false,
	}
	for input, want := range cases {
		if got := IsAllowedBaseURL(input); got != want {
			t.Fatalf("IsAllowedBaseURL(%q) = %v, want %v", input, got, want)
		}
	}
}
