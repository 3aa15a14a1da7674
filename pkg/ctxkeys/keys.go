// Package ctxkeys defines typed context keys shared by HTTP handlers,
// middleware and the MCP spoke.
package ctxkeys

import "context"

// Key is a typed context key to prevent collisions.
type Key string

const (
	KeyUserID      Key = "user_id"
	KeyWorkspaceID Key = "workspace_id"
	KeyRole        Key = "role"
	KeyAuthType    Key = "auth_type"
	KeyRequestID   Key = "request_id"
)

// GetWorkspaceID extracts workspace_id from context.
func GetWorkspaceID(ctx context.Context) string {
	if v, ok := ctx.Value(KeyWorkspaceID).(string); ok {
		return v
	}
	return ""
}

// GetUserID extracts user_id from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(KeyUserID).(string); ok {
		return v
	}
	return ""
}

func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(KeyRole).(string); ok {
		return v
	}
	return ""
}

func GetAuthType(ctx context.Context) string {
	if v, ok := ctx.Value(KeyAuthType).(string); ok {
		return v
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(KeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithWorkspace returns ctx carrying the workspace and user ids.
func WithWorkspace(ctx context.Context, workspaceID, userID string) context.Context {
	ctx = context.WithValue(ctx, KeyWorkspaceID, workspaceID)
	return context.WithValue(ctx, KeyUserID, userID)
}
