// Package webrtcsink forwards flvdemux's demuxed H.264 video samples to a
// browser over WebRTC, grounded on the teacher's
// internal/device_connect/webrtc bridge, which wires a device's video
// stream into a pion TrackLocalStaticSample the same way.
package webrtcsink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pkg/errors"

	"github.com/streamworks/flvdemux/internal/flvbits"
	"github.com/streamworks/flvdemux/internal/flvdemux"
)

// Sink forwards BufferForStream(VIDEO_STREAM_ID, ...) payloads to a single
// WebRTC video track. It ignores audio and metadata events entirely: this
// is a video-preview sink, not a full remux.
type Sink struct {
	log   *slog.Logger
	mu    sync.Mutex
	track *webrtc.TrackLocalStaticSample
	last  int64
}

// New creates a Sink with a fresh H.264 video track named trackID, ready to
// be added to a webrtc.PeerConnection with AddTrack. logger may be nil.
func New(trackID, streamID string, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		trackID, streamID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "webrtcsink: new track")
	}
	return &Sink{log: logger, track: track}, nil
}

// Track returns the local track to pass to PeerConnection.AddTrack.
func (s *Sink) Track() *webrtc.TrackLocalStaticSample {
	return s.track
}

// HandleEvent feeds one flvdemux.Event to the sink. Only video
// BufferForStream events produce output.
func (s *Sink) HandleEvent(ev flvdemux.Event) error {
	if ev.Kind != flvdemux.EventBufferForStream || ev.StreamID != flvdemux.VideoStreamID {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pts := ev.Buffer.DTSOrPTS()
	duration := 33 * time.Millisecond
	if s.last != 0 && pts > s.last {
		duration = time.Duration(pts-s.last) * time.Nanosecond
	}
	s.last = pts

	annexB := flvbits.AVCCToAnnexB(ev.Buffer.Data)
	if len(annexB) == 0 {
		return nil
	}

	if err := s.track.WriteSample(media.Sample{Data: annexB, Duration: duration}); err != nil {
		return errors.Wrap(err, "webrtcsink: write sample")
	}
	return nil
}
