package engine

import (
	"strings"
	"testing"
)

func enabledModule(name string, deps ...string) Module {
	return Module{Name: name, Source: "modules/" + name, Enabled: true, DependsOn: deps}
}

func moduleNames(modules []*Module) []string {
	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name
	}
	return names
}

func TestResolver_Resolve_Empty(t *testing.T) {
	ordered, err := NewResolver().Resolve(nil)
	if err != nil {
		t.Fatalf("Expected no error for empty declarations, got: %v", err)
	}
	if len(ordered) != 0 {
		t.Errorf("Expected 0 modules, got %d", len(ordered))
	}
}

func TestResolver_Resolve_LinearDependencies(t *testing.T) {
	modules := []Module{
		enabledModule("storage"),
		enabledModule("endpoint", "storage"),
		enabledModule("alerts", "endpoint"),
	}

	ordered, err := NewResolver().Resolve(modules)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := moduleNames(ordered)
	want := []string{"storage", "endpoint", "alerts"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestResolver_Resolve_DeclarationOrderTieBreak(t *testing.T) {
	// B and C are both ready after A; declaration order (C before B) must
	// break the tie, and repeated runs must agree.
	modules := []Module{
		enabledModule("a"),
		enabledModule("c", "a"),
		enabledModule("b", "a"),
	}

	first, err := NewResolver().Resolve(modules)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := moduleNames(first)
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Position %d: expected %s, got %s (full order: %v)", i, want[i], got[i], got)
		}
	}

	for run := 0; run < 20; run++ {
		again, err := NewResolver().Resolve(modules)
		if err != nil {
			t.Fatalf("Run %d: expected no error, got: %v", run, err)
		}
		for i, m := range again {
			if m.Name != want[i] {
				t.Fatalf("Run %d not deterministic: got %v", run, moduleNames(again))
			}
		}
	}
}

func TestResolver_Resolve_DiamondDependencies(t *testing.T) {
	modules := []Module{
		enabledModule("base"),
		enabledModule("left", "base"),
		enabledModule("right", "base"),
		enabledModule("top", "left", "right"),
	}

	ordered, err := NewResolver().Resolve(modules)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	pos := make(map[string]int)
	for i, m := range ordered {
		pos[m.Name] = i
	}

	if pos["base"] != 0 {
		t.Errorf("Expected base first, got position %d", pos["base"])
	}
	if pos["top"] != 3 {
		t.Errorf("Expected top last, got position %d", pos["top"])
	}
	if pos["left"] > pos["right"] {
		t.Errorf("Expected left before right (declaration order), got %v", moduleNames(ordered))
	}
}

func TestResolver_Resolve_CycleDetected(t *testing.T) {
	modules := []Module{
		enabledModule("a", "c"),
		enabledModule("b", "a"),
		enabledModule("c", "b"),
	}

	_, err := NewResolver().Resolve(modules)
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}
	if !IsCyclicDependency(err) {
		t.Errorf("Expected cyclic dependency error, got: %v", err)
	}
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration classification, got: %v", err)
	}

	// The message must name the modules in the cycle.
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Expected cycle message to mention %s, got: %v", name, err)
		}
	}
}

func TestResolver_Resolve_SelfDependency(t *testing.T) {
	modules := []Module{
		enabledModule("a", "a"),
	}

	_, err := NewResolver().Resolve(modules)
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}
	if !IsCyclicDependency(err) {
		t.Errorf("Expected cyclic dependency error, got: %v", err)
	}
}

func TestResolver_Resolve_UnknownDependency(t *testing.T) {
	modules := []Module{
		enabledModule("a", "missing"),
	}

	_, err := NewResolver().Resolve(modules)
	if err == nil {
		t.Fatal("Expected error for unknown dependency, got nil")
	}
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestResolver_Resolve_DisabledDependencyRejected(t *testing.T) {
	disabled := enabledModule("b")
	disabled.Enabled = false

	modules := []Module{
		disabled,
		enabledModule("a", "b"),
	}

	_, err := NewResolver().Resolve(modules)
	if err == nil {
		t.Fatal("Expected error for dependency on disabled module, got nil")
	}
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestResolver_Resolve_DisabledModulesExcluded(t *testing.T) {
	disabled := enabledModule("extra")
	disabled.Enabled = false

	modules := []Module{
		enabledModule("a"),
		disabled,
		enabledModule("b", "a"),
	}

	ordered, err := NewResolver().Resolve(modules)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(ordered) != 2 {
		t.Fatalf("Expected 2 modules, got %d: %v", len(ordered), moduleNames(ordered))
	}
	for _, m := range ordered {
		if m.Name == "extra" {
			t.Error("Disabled module appeared in resolved order")
		}
	}
}

func TestResolver_Resolve_DuplicateName(t *testing.T) {
	modules := []Module{
		enabledModule("a"),
		enabledModule("a"),
	}

	_, err := NewResolver().Resolve(modules)
	if err == nil {
		t.Fatal("Expected error for duplicate module name, got nil")
	}
	if !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestResolver_ReverseResolve(t *testing.T) {
	modules := []Module{
		enabledModule("storage"),
		enabledModule("endpoint", "storage"),
		enabledModule("alerts", "endpoint"),
	}

	ordered, err := NewResolver().ReverseResolve(modules)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := moduleNames(ordered)
	want := []string{"alerts", "endpoint", "storage"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestResolver_ToDOT(t *testing.T) {
	modules := []Module{
		enabledModule("a"),
		enabledModule("b", "a"),
	}

	r := NewResolver()
	if _, err := r.Resolve(modules); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dot := r.ToDOT()
	if !strings.Contains(dot, "digraph") {
		t.Error("Expected DOT output to contain digraph header")
	}
	if !strings.Contains(dot, `"a" -> "b"`) {
		t.Errorf("Expected edge a -> b in DOT output, got:\n%s", dot)
	}
}
