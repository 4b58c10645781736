package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// PromptConfirmer asks the operator to approve a plan on an interactive
// stream. An unanswered prompt defaults to no: EOF, a read error, context
// cancellation, or the response timeout all decline the plan.
type PromptConfirmer struct {
	in  io.Reader
	out io.Writer

	// Timeout bounds how long the prompt waits for a response. Zero means
	// wait indefinitely (until EOF or context cancellation).
	Timeout time.Duration
}

// NewPromptConfirmer creates a confirmer reading answers from in and
// rendering the plan to out.
func NewPromptConfirmer(in io.Reader, out io.Writer, timeout time.Duration) *PromptConfirmer {
	return &PromptConfirmer{in: in, out: out, Timeout: timeout}
}

// Confirm renders the plan and waits for a yes-or-no answer. Only an
// explicit "yes" approves.
func (c *PromptConfirmer) Confirm(ctx context.Context, plan *ChangePlan) (bool, error) {
	RenderPlan(c.out, plan)
	fmt.Fprint(c.out, "\nApply these changes? Only 'yes' will be accepted: ")

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(c.in).ReadString('\n')
		ch <- answer{text: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out, "\nNo response; declining.")
		return false, nil
	case a := <-ch:
		if a.err != nil && a.text == "" {
			return false, nil
		}
		return strings.TrimSpace(a.text) == "yes", nil
	}
}

// AutoConfirmer approves every plan without prompting. Used by the
// --auto-approve flag and by tests.
type AutoConfirmer struct{}

// Confirm always approves.
func (AutoConfirmer) Confirm(ctx context.Context, plan *ChangePlan) (bool, error) {
	return true, nil
}

// RenderPlan writes a human-readable summary of a plan.
func RenderPlan(w io.Writer, plan *ChangePlan) {
	fmt.Fprintf(w, "Plan for deployment %s:\n\n", plan.DeploymentID)
	for _, a := range plan.Actions {
		marker := " "
		switch a.Action {
		case ActionCreate:
			marker = "+"
		case ActionUpdate:
			marker = "~"
		case ActionDestroy:
			marker = "-"
		}
		if a.Reason != "" {
			fmt.Fprintf(w, "  %s %s (%s)\n", marker, a.Module, a.Reason)
		} else {
			fmt.Fprintf(w, "  %s %s\n", marker, a.Module)
		}
	}
	fmt.Fprintf(w, "\nSummary: %d to create, %d to update, %d to destroy, %d unchanged.\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Destroy, plan.Summary.Noop)
}
