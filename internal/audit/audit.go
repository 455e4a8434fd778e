// Package audit records who changed what through the HTTP API. Events are
// kept in memory, newest first, for the admin overview.
package audit

import (
	"context"
	"time"
)

// AuditEvent represents a single auditable action in the system.
type AuditEvent struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Actor        string    `json:"actor"`         // username or "anonymous"
	ActorType    string    `json:"actor_type"`    // "user", "admin" or "anonymous"
	Action       string    `json:"action"`        // "create", "update", "delete"
	ResourceType string    `json:"resource_type"` // "conversation", "comparison", ...
	ResourceID   string    `json:"resource_id"`
	RequestID    string    `json:"request_id,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	StatusCode   int       `json:"status_code"`
}

// ListOptions provides filtering and pagination options for listing audit events.
type ListOptions struct {
	Limit        int
	Offset       int
	Actor        string
	Action       string
	ResourceType string
	Since        *time.Time
}

// AuditLogger defines the interface for audit logging operations.
type AuditLogger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *AuditEvent) error

	// List retrieves audit events with optional filtering.
	List(ctx context.Context, opts ListOptions) ([]*AuditEvent, int, error)
}

// Valid actions for audit events.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Valid resource types for audit events.
const (
	ResourceConversation = "conversation"
	ResourceMessage      = "message"
	ResourceComparison   = "comparison"
	ResourceSettings     = "settings"
	ResourceInputs       = "saved_input"
	ResourceSession      = "session"
	ResourceAccount      = "account"
)

// Valid actor types.
const (
	ActorTypeUser      = "user"
	ActorTypeAdmin     = "admin"
	ActorTypeAnonymous = "anonymous"
)
