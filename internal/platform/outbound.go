package platform

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bosun/internal/gateway"
	"bosun/pkg/logging"
	"bosun/pkg/redis"
)

var messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bosun_platform_messages_total",
	Help: "Outbound platform messages by outcome",
}, []string{"status"})

// Limiter is satisfied by *redis.SlidingWindow.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (redis.Decision, error)
}

// Outbound applies the per-workspace outbound window before sending. The
// window fails open: a limiter error is logged and the message still goes out.
type Outbound struct {
	messenger Messenger
	limiter   Limiter
	perMinute int
	logger    logging.Logger
}

func NewOutbound(messenger Messenger, limiter Limiter, perMinute int, logger logging.Logger) *Outbound {
	return &Outbound{messenger: messenger, limiter: limiter, perMinute: perMinute, logger: logging.OrDiscard(logger)}
}

// Send delivers msg, returning ErrRateLimited without sending when the window is full.
func (o *Outbound) Send(ctx context.Context, msg OutboundMessage) error {
	if o.limiter != nil {
		d, err := o.limiter.Allow(ctx, msg.WorkspaceID, o.perMinute)
		switch {
		case err != nil:
			o.logger.WithError(err).WithField("workspace_id", msg.WorkspaceID).Warn("Outbound limiter unavailable, sending anyway")
		case !d.Allowed:
			gateway.RateLimitRejections.WithLabelValues("outbound").Inc()
			messagesSent.WithLabelValues("rate_limited").Inc()
			return fmt.Errorf("workspace %s: %w", msg.WorkspaceID, ErrRateLimited)
		}
	}
	if err := o.messenger.Send(ctx, msg); err != nil {
		messagesSent.WithLabelValues("error").Inc()
		return err
	}
	messagesSent.WithLabelValues("sent").Inc()
	return nil
}
