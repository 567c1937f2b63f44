package fileid

import (
	"strings"
	"testing"
)

func TestDocID(t *testing.T) {
	id1 := DocID("support", "/docs/refunds.md")
	id2 := DocID("support", "/docs/refunds.md")
	if id1 != id2 {
		t.Errorf("same tenant and path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, prefix) || len(id1) != len(prefix)+64 {
		t.Errorf("unexpected ID format: %q", id1)
	}
}

func TestDocID_differentPaths(t *testing.T) {
	if DocID("support", "/docs/a.md") == DocID("support", "/docs/b.md") {
		t.Error("different paths should give different IDs")
	}
}

func TestDocID_tenantScoped(t *testing.T) {
	if DocID("support", "/docs/a.md") == DocID("sales", "/docs/a.md") {
		t.Error("different tenants should give different IDs for the same path")
	}
	// the separator keeps tenant and path from running together
	if DocID("a", "b/c.md") == DocID("ab", "/c.md") {
		t.Error("tenant and path boundaries should not collide")
	}
}

func TestDocID_normalized(t *testing.T) {
	id1 := DocID("t", "/docs/notes")
	id2 := DocID("t", "/docs/notes/")
	id3 := DocID("t", "/docs/./notes")
	if id1 != id2 || id1 != id3 {
		t.Errorf("equivalent paths should match: %q %q %q", id1, id2, id3)
	}
}
