package pionrtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// LocalTrack adapts a pion local track to the orchestrator's Track.
type LocalTrack struct {
	Track webrtc.TrackLocal
}

func (t LocalTrack) ID() string   { return t.Track.ID() }
func (t LocalTrack) Kind() string { return t.Track.Kind().String() }

// NewLocalTrack creates a sample-fed track: opus for "audio", vp8 for "video".
func NewLocalTrack(kind, id, streamID string) (LocalTrack, error) {
	var mime string
	switch kind {
	case "audio":
		mime = webrtc.MimeTypeOpus
	case "video":
		mime = webrtc.MimeTypeVP8
	default:
		return LocalTrack{}, fmt.Errorf("unsupported track kind %q", kind)
	}
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, streamID)
	if err != nil {
		return LocalTrack{}, err
	}
	return LocalTrack{Track: tr}, nil
}

type RemoteTrack struct {
	Remote *webrtc.TrackRemote
}

func (t RemoteTrack) ID() string   { return t.Remote.ID() }
func (t RemoteTrack) Kind() string { return t.Remote.Kind().String() }
