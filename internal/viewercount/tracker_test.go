package viewercount

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/feed/feedtest"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

type reading struct {
	n      int
	source string
}

type recordingSink struct {
	mu       sync.Mutex
	readings []reading
}

func (s *recordingSink) SetViewerCount(n int, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, reading{n, source})
}

func (s *recordingSink) all() []reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reading(nil), s.readings...)
}

type fakeCounter struct {
	mu    sync.Mutex
	value int
	err   error
	calls int
}

func (f *fakeCounter) CountActiveViewers(context.Context, int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.value, f.err
}

func (f *fakeCounter) set(v int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value, f.err = v, err
}

func (f *fakeCounter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTrackerPollsImmediatelyAndPeriodically(t *testing.T) {
	fc := clockwork.NewFakeClock()
	counter := &fakeCounter{value: 3}
	sink := &recordingSink{}
	tr := NewTracker(counter, feedtest.NewSource(), sink, fc, Config{PollInterval: time.Minute})

	require.NoError(t, tr.Start(context.Background(), 42))
	defer tr.Stop()

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, reading{3, domain.ViewerCountFromPoll}, sink.all()[0])

	counter.set(5, nil)
	fc.BlockUntil(1)
	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, reading{5, domain.ViewerCountFromPoll}, sink.all()[1])
}

func TestTrackerForwardsFeed(t *testing.T) {
	src := feedtest.NewSource()
	counter := &fakeCounter{value: 1}
	sink := &recordingSink{}
	tr := NewTracker(counter, src, sink, clockwork.NewFakeClock(), Config{})

	require.NoError(t, tr.Start(context.Background(), 42))
	defer tr.Stop()
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 2*time.Millisecond)

	require.NoError(t, src.PushViewerCount(42, pubsub.ViewerCountPayload{LiveStreamID: 42, ViewerCount: 17}))
	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, reading{17, domain.ViewerCountFromFeed}, sink.all()[1])
}

func TestTrackerPollFailureIsAbsorbed(t *testing.T) {
	fc := clockwork.NewFakeClock()
	counter := &fakeCounter{err: errors.New("timeout")}
	sink := &recordingSink{}
	tr := NewTracker(counter, feedtest.NewSource(), sink, fc, Config{PollInterval: time.Minute})

	require.NoError(t, tr.Start(context.Background(), 42))
	defer tr.Stop()

	require.Eventually(t, func() bool { return counter.callCount() == 1 }, time.Second, 2*time.Millisecond)
	counter.set(9, nil)
	fc.BlockUntil(1)
	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 9, sink.all()[0].n)
}

func TestTrackerStopUnsubscribes(t *testing.T) {
	src := feedtest.NewSource()
	tr := NewTracker(&fakeCounter{}, src, &recordingSink{}, clockwork.NewFakeClock(), Config{})
	require.NoError(t, tr.Start(context.Background(), 42))

	tr.Stop()
	tr.Stop()
	assert.Equal(t, []string{pubsub.ViewerChangesChannel(42)}, src.Closed())
}
