// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// ConsoleReviewer walks an operator through an agent's pending requests on
// stdin/stdout. Anything other than an explicit yes leaves the request
// pending; decisions default to "skip", never to approval.
type ConsoleReviewer struct {
	reviewer *Reviewer
	in       *bufio.Reader
	out      io.Writer
	prompt   string
}

// ConsoleOption configures the console reviewer.
type ConsoleOption func(*ConsoleReviewer)

// NewConsoleReviewer creates a console-based review session.
func NewConsoleReviewer(reviewer *Reviewer, opts ...ConsoleOption) *ConsoleReviewer {
	c := &ConsoleReviewer{
		reviewer: reviewer,
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		prompt:   "Decision [a]pprove / [r]eject / [s]kip: ",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithInput sets the input reader for the console reviewer.
func WithInput(r io.Reader) ConsoleOption {
	return func(c *ConsoleReviewer) {
		if r != nil {
			c.in = bufio.NewReader(r)
		}
	}
}

// WithOutput sets the output writer for the console reviewer.
func WithOutput(w io.Writer) ConsoleOption {
	return func(c *ConsoleReviewer) {
		if w != nil {
			c.out = w
		}
	}
}

// Review iterates the agent's pending requests, prompting for each.
// Returns how many were approved and rejected.
func (c *ConsoleReviewer) Review(ctx context.Context, agentID string) (approved, rejected int, err error) {
	pending, err := c.reviewer.Pending(ctx, agentID)
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		fmt.Fprintln(c.out, "No pending improvement requests.")
		return 0, 0, nil
	}

	for _, req := range pending {
		fmt.Fprintf(c.out, "\nRequest %s (%s, priority %s, risk %s, cost %d)\n",
			req.ID, req.RequestType, req.Priority, req.Risk, req.CostEstimate)
		fmt.Fprintf(c.out, "  %s\n", req.Description)
		if req.Benefit != "" {
			fmt.Fprintf(c.out, "  Benefit: %s\n", req.Benefit)
		}
		fmt.Fprint(c.out, c.prompt)

		line, readErr := c.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "a", "approve", "y", "yes":
			if _, err := c.reviewer.Approve(ctx, req.ID); err != nil {
				return approved, rejected, err
			}
			approved++
		case "r", "reject", "n", "no":
			if err := c.reviewer.Reject(ctx, req.ID); err != nil {
				return approved, rejected, err
			}
			rejected++
		default:
			fmt.Fprintln(c.out, "Skipped.")
		}
		if readErr != nil {
			break
		}
	}
	return approved, rejected, nil
}
