package toolkit

import (
	"context"
	"errors"
	"testing"

	"github.com/notekit/notemcp/mcp"
)

func staticProvider(tools ...Tool) Provider {
	return ProviderFunc(func(ctx context.Context) ([]Tool, error) {
		return tools, nil
	})
}

func namesOf(tools []mcp.Tool) map[string]bool {
	m := make(map[string]bool, len(tools))
	for _, t := range tools {
		m[t.Name] = true
	}
	return m
}

func testToolSet() []Tool {
	type noArgs struct{}
	handler := func(ctx context.Context, args noArgs) (*mcp.CallToolResult, error) {
		return TextResult("ok"), nil
	}
	return []Tool{
		NewTool("read_only", handler, WithReadOnly(true)),
		NewTool("plain_write", handler, WithReadOnly(false)),
		NewTool("destructive_write", handler, WithReadOnly(false), WithDestructive(true)),
		NewTool("unannotated", handler),
	}
}

func TestRegistryTiers(t *testing.T) {
	cases := []struct {
		tier Tier
		want []string
	}{
		{TierAllowAll, []string{"read_only", "plain_write", "destructive_write", "unannotated"}},
		{TierAllowNonDestructive, []string{"read_only", "plain_write", "unannotated"}},
		{TierDenyAll, []string{"read_only", "unannotated"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.tier), func(t *testing.T) {
			r := NewRegistry(nil)
			if err := r.RegisterAll(context.Background(), tc.tier, staticProvider(testToolSet()...)); err != nil {
				t.Fatal(err)
			}
			got := namesOf(r.Descriptors())
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d tools, got %v", len(tc.want), got)
			}
			for _, name := range tc.want {
				if !got[name] {
					t.Fatalf("missing tool %q in %v", name, got)
				}
			}
		})
	}
}

func TestRegistryFilteredToolIsNotCallable(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.RegisterAll(context.Background(), TierDenyAll, staticProvider(testToolSet()...)); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Call(context.Background(), "destructive_write", nil); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("filtered tool must not be callable, got %v", err)
	}
	if _, err := r.Call(context.Background(), "read_only", []byte("{}")); err != nil {
		t.Fatalf("allowed tool call failed: %v", err)
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry(nil)
	set := testToolSet()
	err := r.RegisterAll(context.Background(), TierAllowAll, staticProvider(set[0], set[0]))
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestParseTier(t *testing.T) {
	if tier, err := ParseTier(""); err != nil || tier != TierAllowAll {
		t.Fatalf("empty tier should default to allow_all, got %v %v", tier, err)
	}
	if _, err := ParseTier("allow_some"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}
