package session

import (
	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
)

// The methods below are called from collaborator goroutines. Each one only
// posts to the mailbox; a post after teardown is dropped.

func (s *session) OnConnected() {
	s.post(s.onConnected)
}

func (s *session) OnDisconnected(reason string) {
	s.post(func() { s.onDisconnected(reason) })
}

func (s *session) OnReconnecting() {
	s.post(func() {
		if s.state == domain.StateConnected {
			s.setState(domain.StateReconnecting)
		}
	})
}

func (s *session) OnReconnected() {
	s.post(func() {
		if s.state == domain.StateReconnecting {
			s.setState(domain.StateConnected)
		}
	})
}

// OnTrackSubscribed replaces any existing binding of the same kind, so at
// most one video and one audio track are ever attached.
func (s *session) OnTrackSubscribed(b domain.TrackBinding) {
	s.post(func() {
		if !s.state.Live() {
			return
		}
		s.tracks[b.Kind] = b
		s.emit()
	})
}

func (s *session) OnTrackUnsubscribed(b domain.TrackBinding) {
	s.post(func() {
		cur, ok := s.tracks[b.Kind]
		if !ok || !cur.Same(b) {
			return
		}
		delete(s.tracks, b.Kind)
		s.emit()
	})
}

func (s *session) Emit(e domain.OverlayEvent) {
	s.post(func() {
		if !s.state.Live() {
			return
		}
		s.overlay = append(s.overlay, e)
		if over := len(s.overlay) - s.deps.TimelineSize; over > 0 {
			s.overlay = append(s.overlay[:0:0], s.overlay[over:]...)
		}
		s.emit()
	})
}

func (s *session) Update(key string, fn func(*domain.OverlayEvent)) {
	s.post(func() {
		for i := range s.overlay {
			if s.overlay[i].Key == key {
				fn(&s.overlay[i])
				s.emit()
				return
			}
		}
	})
}

func (s *session) SetViewerCount(n int, source string) {
	s.post(func() {
		if !s.state.Live() {
			return
		}
		s.viewerCount = n
		s.countSource = source
		s.emit()
	})
}
