// SPDX-License-Identifier: Apache-2.0

// Package governance implements the human-in-the-loop review of improvement
// requests. Approval here is the only path that grants an agent a new
// capability.
package governance

import (
	"context"
	"log/slog"
	"strings"

	"github.com/meliorworks/melior/pkg/store"
)

// Reviewer applies governance decisions to pending improvement requests.
type Reviewer struct {
	store  store.Store
	logger *slog.Logger
}

// NewReviewer creates a Reviewer.
func NewReviewer(st store.Store, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{store: st, logger: logger}
}

// Approve marks the request approved and grants the agent the capability it
// asked for. Returns the granted capability.
func (r *Reviewer) Approve(ctx context.Context, requestID string) (*store.Capability, error) {
	req, err := r.store.GetImprovementRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpdateRequestStatus(ctx, requestID, store.StatusApproved); err != nil {
		return nil, err
	}
	cap := store.Capability{
		AgentID:     req.AgentID,
		Type:        capabilityTypeFor(req.RequestType),
		Name:        capabilityName(req.Description),
		Description: req.Description,
	}
	if err := r.store.AddCapability(ctx, cap, requestID); err != nil {
		return nil, err
	}
	r.logger.Info("improvement request approved",
		"request_id", requestID,
		"agent_id", req.AgentID,
		"capability_type", cap.Type,
		"capability", cap.Name)
	return &cap, nil
}

// Reject marks the request rejected. No capability is created.
func (r *Reviewer) Reject(ctx context.Context, requestID string) error {
	if err := r.store.UpdateRequestStatus(ctx, requestID, store.StatusRejected); err != nil {
		return err
	}
	r.logger.Info("improvement request rejected", "request_id", requestID)
	return nil
}

// Pending lists an agent's requests awaiting review.
func (r *Reviewer) Pending(ctx context.Context, agentID string) ([]store.ImprovementRequest, error) {
	return r.store.ListPendingImprovementRequests(ctx, agentID)
}

func capabilityTypeFor(t store.RequestType) store.CapabilityType {
	switch t {
	case store.RequestNewSkill:
		return store.CapabilitySkill
	case store.RequestNewTool:
		return store.CapabilityTool
	case store.RequestNewAPI:
		return store.CapabilityAPI
	default:
		// Approved process changes are recorded as framework capabilities:
		// they change how the agent works rather than what it owns.
		return store.CapabilityFramework
	}
}

const maxCapabilityNameLen = 64

// capabilityName derives a stable name from the request description so a
// re-approved identical request upserts rather than duplicates.
func capabilityName(description string) string {
	name := strings.TrimSpace(description)
	if len(name) > maxCapabilityNameLen {
		name = strings.TrimSpace(name[:maxCapabilityNameLen])
	}
	return name
}
