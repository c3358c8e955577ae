package webrtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

// PeerManager builds receive-only peer connections.
type PeerManager struct {
	iceServers []webrtc.ICEServer
}

// NewPeerManager creates a PeerManager using the given STUN/TURN urls.
func NewPeerManager(iceURLs []string) *PeerManager {
	var servers []webrtc.ICEServer
	if len(iceURLs) > 0 {
		servers = []webrtc.ICEServer{{URLs: iceURLs}}
	}
	return &PeerManager{iceServers: servers}
}

// TrackHandler is called when a remote track arrives.
type TrackHandler func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// StateHandler is called when the connection state changes.
type StateHandler func(state webrtc.PeerConnectionState)

type codec struct {
	params webrtc.RTPCodecParameters
	kind   webrtc.RTPCodecType
}

var codecs = []codec{
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		},
		kind: webrtc.RTPCodecTypeVideo,
	},
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000},
			PayloadType:        98,
		},
		kind: webrtc.RTPCodecTypeVideo,
	},
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
			},
			PayloadType: 102,
		},
		kind: webrtc.RTPCodecTypeVideo,
	},
	{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: 111,
		},
		kind: webrtc.RTPCodecTypeAudio,
	},
}

// CreatePeerConnection creates a peer connection with one recvonly video
// and one recvonly audio transceiver.
func (pm *PeerManager) CreatePeerConnection(onTrack TrackHandler, onState StateHandler) (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range codecs {
		if err := m.RegisterCodec(c.params, c.kind); err != nil {
			return nil, err
		}
	}

	// Periodic PLI so the first keyframe arrives quickly after joining
	i := &interceptor.Registry{}
	intervalPliFactory, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, err
	}
	i.Add(intervalPliFactory)

	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: pm.iceServers})
	if err != nil {
		return nil, err
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		l := log.L()
		l.Debug().
			Str("mime_type", track.Codec().MimeType).
			Str("kind", track.Kind().String()).
			Msg("Track received")
		if onTrack != nil {
			onTrack(track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		l := log.L()
		l.Debug().Str(log.FieldState, state.String()).Msg("Peer connection state")
		if onState != nil {
			onState(state)
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		l := log.L()
		l.Debug().Str(log.FieldState, state.String()).Msg("ICE connection state")
	})

	return pc, nil
}
