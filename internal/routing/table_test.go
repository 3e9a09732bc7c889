package routing

import (
	"testing"

	"phone-assistant/internal/config"
)

func testDepartments() []config.Department {
	return []config.Department{
		{Signal: "1", Label: "Billing", Number: "+12345678901"},
		{Signal: "2", Label: "Tech Support", Number: "+19999999999"},
		{Signal: "3", Label: "Customer Service", Number: "+15550001111"},
	}
}

func TestTable_ResolveIsDeterministic(t *testing.T) {
	tbl, err := NewTable(testDepartments())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for i := 0; i < 3; i++ {
		r, ok := tbl.Resolve("1")
		if !ok {
			t.Fatalf("expected signal 1 to resolve")
		}
		if r.Label != "Billing" || r.Destination != "+12345678901" {
			t.Fatalf("unexpected route: %+v", r)
		}
	}
}

func TestTable_UnknownSignalNotFound(t *testing.T) {
	tbl, err := NewTable(testDepartments())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok := tbl.Resolve("9"); ok {
		t.Fatalf("expected signal 9 to be unmapped")
	}
	if _, ok := tbl.Resolve(""); ok {
		t.Fatalf("expected empty signal to be unmapped")
	}
}

func TestNewTable_EmptyDestinationFails(t *testing.T) {
	deps := testDepartments()
	deps[2].Number = ""
	if _, err := NewTable(deps); err == nil {
		t.Fatalf("expected error for empty destination")
	}
}

func TestNewTable_DuplicateSignalFails(t *testing.T) {
	deps := testDepartments()
	deps[1].Signal = "1"
	if _, err := NewTable(deps); err == nil {
		t.Fatalf("expected error for duplicate signal")
	}
}

func TestTable_RoutesPreservesOrder(t *testing.T) {
	tbl, err := NewTable(testDepartments())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	routes := tbl.Routes()
	if len(routes) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(routes))
	}
	for i, want := range []string{"1", "2", "3"} {
		if routes[i].Signal != want {
			t.Fatalf("expected signal %s at position %d, got %s", want, i, routes[i].Signal)
		}
	}
}
