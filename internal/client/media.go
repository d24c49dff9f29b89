package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// ErrMediaUnavailable covers permission denial, missing devices and
// busy devices. It is a capability gap, not a fatal error: a client
// without media still participates text-only.
var ErrMediaUnavailable = errors.New("camera/microphone unavailable")

// CaptureFunc opens the local capture backend and returns the tracks to
// publish. Either track may be nil when the corresponding device is
// absent.
type CaptureFunc func() (video, audio webrtc.TrackLocal, err error)

// NullCapture returns negotiation-only tracks that carry no samples.
// It lets a headless client take part in the mesh and receive remote
// media without a real capture device.
func NullCapture() (webrtc.TrackLocal, webrtc.TrackLocal, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "geochat")
	if err != nil {
		return nil, nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "geochat")
	if err != nil {
		return nil, nil, err
	}
	return video, audio, nil
}

// LocalMedia holds the local tracks plus the camera/mic enabled flags.
// Toggling flips a flag consulted by the sample producer; it never
// renegotiates a peer link.
type LocalMedia struct {
	mu       sync.Mutex
	video    webrtc.TrackLocal
	audio    webrtc.TrackLocal
	cameraOn bool
	micOn    bool
}

func OpenLocalMedia(capture CaptureFunc) (*LocalMedia, error) {
	if capture == nil {
		return nil, ErrMediaUnavailable
	}
	video, audio, err := capture()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	if video == nil && audio == nil {
		return nil, ErrMediaUnavailable
	}
	return &LocalMedia{
		video:    video,
		audio:    audio,
		cameraOn: video != nil,
		micOn:    audio != nil,
	}, nil
}

func (lm *LocalMedia) Tracks() []webrtc.TrackLocal {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	var out []webrtc.TrackLocal
	if lm.video != nil {
		out = append(out, lm.video)
	}
	if lm.audio != nil {
		out = append(out, lm.audio)
	}
	return out
}

// ToggleCamera flips the camera flag and returns the new value.
func (lm *LocalMedia) ToggleCamera() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.video == nil {
		return false
	}
	lm.cameraOn = !lm.cameraOn
	return lm.cameraOn
}

// ToggleMic flips the microphone flag and returns the new value.
func (lm *LocalMedia) ToggleMic() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.audio == nil {
		return false
	}
	lm.micOn = !lm.micOn
	return lm.micOn
}

func (lm *LocalMedia) CameraOn() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.cameraOn
}

func (lm *LocalMedia) MicOn() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.micOn
}
