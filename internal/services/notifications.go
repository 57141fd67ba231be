package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"flashdeck-backend/internal/cardstream"
	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

// Notifier pushes realtime messages to a user's websocket connections through
// the user_updates:<id> redis channel.
type Notifier struct {
	redis *redis.Client
	log   *logger.Logger
}

func NewNotifier(redisClient *redis.Client, log *logger.Logger) *Notifier {
	return &Notifier{redis: redisClient, log: log}
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (n *Notifier) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		n.log.Error("failed to encode websocket message", "type", msg.Type, "error", err)
		return
	}
	if err := n.redis.Publish(ctx, UserChannel(userID), string(data)).Err(); err != nil {
		n.log.Warn("failed to publish websocket message", "user_id", userID, "type", msg.Type, "error", err)
	}
}

func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// progressThrottle limits generation_progress messages. A snapshot goes out when a
// card was completed since the last one sent, or when interval has passed.
type progressThrottle struct {
	interval  time.Duration
	last      time.Time
	completed int
	sent      bool
}

func newProgressThrottle(interval time.Duration) *progressThrottle {
	return &progressThrottle{interval: interval}
}

func (p *progressThrottle) allow(now time.Time, snap cardstream.Snapshot) bool {
	if p.sent && len(snap.Completed) == p.completed && now.Sub(p.last) < p.interval {
		return false
	}
	p.sent = true
	p.last = now
	p.completed = len(snap.Completed)
	return true
}
