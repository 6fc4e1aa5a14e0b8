package realtime

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewMessageID returns a ULID for an inbound message.
// The server supplies no message id in-band; ULIDs sort in receipt order.
func NewMessageID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
