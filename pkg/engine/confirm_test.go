package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func confirmTestPlan() *ChangePlan {
	return &ChangePlan{
		ID:           "plan-1",
		DeploymentID: "fraud-prod",
		Actions: []PlannedAction{
			{Module: "storage", Action: ActionCreate, Reason: "not yet provisioned"},
			{Module: "endpoint", Action: ActionUpdate, Reason: "configuration changed"},
		},
		Summary: PlanSummary{Create: 1, Update: 1},
	}
}

func TestPromptConfirmer_Yes(t *testing.T) {
	var out bytes.Buffer
	c := NewPromptConfirmer(strings.NewReader("yes\n"), &out, 0)

	ok, err := c.Confirm(context.Background(), confirmTestPlan())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok {
		t.Error("Expected 'yes' to approve the plan")
	}
	if !strings.Contains(out.String(), "storage") {
		t.Error("Expected plan rendering to list modules")
	}
}

func TestPromptConfirmer_OnlyExactYesApproves(t *testing.T) {
	for _, answer := range []string{"y\n", "no\n", "YES\n", "\n", "yes please\n"} {
		var out bytes.Buffer
		c := NewPromptConfirmer(strings.NewReader(answer), &out, 0)

		ok, err := c.Confirm(context.Background(), confirmTestPlan())
		if err != nil {
			t.Fatalf("Answer %q: expected no error, got: %v", answer, err)
		}
		if ok {
			t.Errorf("Answer %q: expected decline", answer)
		}
	}
}

func TestPromptConfirmer_EOFDeclines(t *testing.T) {
	var out bytes.Buffer
	c := NewPromptConfirmer(strings.NewReader(""), &out, 0)

	ok, err := c.Confirm(context.Background(), confirmTestPlan())
	if err != nil {
		t.Fatalf("Expected no error on EOF, got: %v", err)
	}
	if ok {
		t.Error("Expected EOF to decline the plan")
	}
}

func TestPromptConfirmer_TimeoutDeclines(t *testing.T) {
	var out bytes.Buffer
	// A blocking reader that never produces input.
	blocked := make(chan struct{})
	defer close(blocked)
	c := NewPromptConfirmer(blockingReader{wait: blocked}, &out, 20*time.Millisecond)

	ok, err := c.Confirm(context.Background(), confirmTestPlan())
	if err != nil {
		t.Fatalf("Expected no error on timeout, got: %v", err)
	}
	if ok {
		t.Error("Expected timeout to decline the plan")
	}
}

type blockingReader struct{ wait chan struct{} }

func (r blockingReader) Read(p []byte) (int, error) {
	<-r.wait
	return 0, nil
}

func TestRenderPlan_Summary(t *testing.T) {
	var out bytes.Buffer
	RenderPlan(&out, confirmTestPlan())

	text := out.String()
	if !strings.Contains(text, "1 to create") {
		t.Errorf("Expected create count in summary, got:\n%s", text)
	}
	if !strings.Contains(text, "+ storage") {
		t.Errorf("Expected create marker for storage, got:\n%s", text)
	}
	if !strings.Contains(text, "~ endpoint") {
		t.Errorf("Expected update marker for endpoint, got:\n%s", text)
	}
}
