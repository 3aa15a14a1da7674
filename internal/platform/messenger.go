// Package platform delivers replies to the social messaging platform.
package platform

import (
	"context"
	"errors"
)

// ErrRateLimited is returned by Outbound when the workspace's outbound window is full.
var ErrRateLimited = errors.New("outbound rate limit exceeded")

type OutboundMessage struct {
	WorkspaceID      string `json:"workspaceId"`
	To               string `json:"to"`
	Text             string `json:"text"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
}

type Messenger interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
