// Package numbering issues human-readable document numbers.
package numbering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	PrefixQuotation = "QT"
	PrefixOrder     = "ORD"
	PrefixInvoice   = "INV"
)

const keyTTL = 48 * time.Hour

// Sequencer hands out numbers of the form PREFIX-YYYYMMDD-NNNNNN backed by a
// daily Redis counter. Without Redis the suffix is random instead.
type Sequencer struct {
	client *redis.Client
	now    func() time.Time
}

// New constructs a Sequencer. client may be nil.
func New(client *redis.Client) *Sequencer {
	return &Sequencer{client: client, now: time.Now}
}

// Next returns the next number for prefix.
func (s *Sequencer) Next(ctx context.Context, prefix string) (string, error) {
	day := s.now().UTC().Format("20060102")
	if s.client == nil {
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
		return fmt.Sprintf("%s-%s-%s", prefix, day, suffix), nil
	}
	key := "numbering:" + prefix + ":" + day
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("numbering: next %s: %w", prefix, err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, keyTTL).Err(); err != nil {
			return "", fmt.Errorf("numbering: expire %s: %w", key, err)
		}
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, day, n), nil
}
