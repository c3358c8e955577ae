package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-live/viewer/internal/feed"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

// statusWatch reports when the watched broadcast goes offline.
type statusWatch struct {
	cancel context.CancelFunc
	close  func() error
	wg     sync.WaitGroup
	once   sync.Once
}

func startStatusWatch(ctx context.Context, source feed.Source, liveStreamID int64, onEnded func()) (*statusWatch, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := source.StreamUpdates(ctx, liveStreamID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe stream updates: %w", err)
	}

	w := &statusWatch{cancel: cancel, close: sub.Close}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case row, ok := <-sub.C:
				if !ok {
					return
				}
				if !row.LiveAvailable {
					l := log.Ctx(ctx)
					l.Info().Int64(log.FieldLiveStreamID, liveStreamID).Msg("Broadcast went offline")
					onEnded()
					return
				}
			}
		}
	}()
	return w, nil
}

func (w *statusWatch) Stop() {
	w.once.Do(func() {
		w.cancel()
		if err := w.close(); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("Failed to close stream status feed")
		}
		w.wg.Wait()
	})
}
