package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "tm"}
	child := &cobra.Command{Use: "tokens", Short: "token lookup"}
	leaf := &cobra.Command{
		Use:         "search",
		Short:       "search tokens",
		Example:     "  tm tokens search --symbol BTC\n",
		Annotations: map[string]string{"endpoint": "/v2/tokens"},
	}
	leaf.Flags().Int("limit", 20, "limit results")
	leaf.Flags().String("symbol", "", "symbol filter")
	_ = leaf.MarkFlagRequired("symbol")
	child.AddCommand(leaf)
	root.AddCommand(child)

	s, err := Build(root, "tokens search")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "tm tokens search" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if s.Example != "tm tokens search --symbol BTC" || s.Annotations["endpoint"] != "/v2/tokens" {
		t.Fatalf("unexpected metadata: %+v", s)
	}
	if len(s.Flags) != 2 {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	for _, f := range s.Flags {
		if f.Required != (f.Name == "symbol") {
			t.Fatalf("unexpected required marker on %s: %+v", f.Name, f)
		}
	}
}

func TestBuildSchemaUnknownPath(t *testing.T) {
	root := &cobra.Command{Use: "tm"}
	if _, err := Build(root, "nope"); err == nil {
		t.Fatal("expected unknown command path to fail")
	}
}
