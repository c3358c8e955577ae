package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

func TestBroadcasterNewestWins(t *testing.T) {
	b := newBroadcaster(domain.Snapshot{State: domain.StateIdle})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.watch(ctx)
	b.publish(domain.Snapshot{State: domain.StateResolving})
	b.publish(domain.Snapshot{State: domain.StateConnecting})

	// the slow reader only sees the newest value
	assert.Equal(t, domain.StateConnecting, (<-ch).State)
	assert.Equal(t, domain.StateConnecting, b.snapshot().State)
}
