// Package webmsink consumes flvdemux events and writes a WebM container,
// mirroring the teacher's transport/stream/webm_muxer.go but sourced from
// flvdemux events rather than device video/audio channels, and carrying
// H.264+AAC (the codecs FLV actually transports) rather than the teacher's
// VP8/Opus pairing.
package webmsink

import (
	"io"
	"log/slog"
	"sync"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/pkg/errors"

	"github.com/streamworks/flvdemux/internal/flvdemux"
)

// Sink writes one WebM stream to w.
type Sink struct {
	w           io.Writer
	log         *slog.Logger
	mu          sync.Mutex
	videoWriter webm.BlockWriteCloser
	audioWriter webm.BlockWriteCloser
	initialized bool
	width       int
	height      int
	video       bool
	audio       bool
}

// New returns a Sink writing to w. logger may be nil.
func New(w io.Writer, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{w: w, log: logger}
}

// HandleEvent feeds one flvdemux.Event to the sink.
func (s *Sink) HandleEvent(ev flvdemux.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case flvdemux.EventStreamAdded, flvdemux.EventStreamChanged:
		return s.applyStream(ev.Stream)
	case flvdemux.EventStreamsChanged:
		for _, st := range ev.Streams {
			if err := s.applyStream(st); err != nil {
				return err
			}
		}
		return nil
	case flvdemux.EventBufferForStream:
		return s.writeSample(ev.StreamID, ev.Buffer)
	}
	return nil
}

func (s *Sink) applyStream(st flvdemux.Stream) error {
	switch st.Kind {
	case flvdemux.KindVideo:
		if w, ok := st.Caps.Fields["width"].(int); ok {
			s.width = w
		}
		if h, ok := st.Caps.Fields["height"].(int); ok {
			s.height = h
		}
		s.video = true
	case flvdemux.KindAudio:
		s.audio = true
	}
	if s.video && s.audio && !s.initialized {
		return s.writeHeader()
	}
	return nil
}

func (s *Sink) writeHeader() error {
	width, height := s.width, s.height
	if width == 0 {
		width = 1920
	}
	if height == 0 {
		height = 1080
	}

	writers, err := webm.NewSimpleBlockWriter(s.w, []webm.TrackEntry{
		{
			Name: "Video", TrackNumber: 1, TrackUID: 1,
			CodecID: "V_MPEG4/ISO/AVC", TrackType: 1,
			Video: &webm.Video{PixelWidth: uint64(width), PixelHeight: uint64(height)},
		},
		{
			Name: "Audio", TrackNumber: 2, TrackUID: 2,
			CodecID: "A_AAC", TrackType: 2,
			Audio: &webm.Audio{SamplingFrequency: 44100.0, Channels: 2},
		},
	}, mkvcore.WithOnFatalHandler(func(err error) {
		s.log.Warn("webmsink: fatal mux error, resetting for reconnect", "error", err)
		s.initialized = false
		s.videoWriter = nil
		s.audioWriter = nil
	}))
	if err != nil {
		return errors.Wrap(err, "webmsink: write header")
	}
	s.videoWriter = writers[0]
	s.audioWriter = writers[1]
	s.initialized = true
	return nil
}

func (s *Sink) writeSample(streamID int, b flvdemux.Buffer) error {
	if !s.initialized {
		return nil
	}
	ns := b.DTSOrPTS()
	switch streamID {
	case flvdemux.VideoStreamID:
		_, err := s.videoWriter.Write(!b.DeltaUnit, ns/int64(1e6), b.Data)
		return err
	case flvdemux.AudioStreamID:
		_, err := s.audioWriter.Write(true, ns/int64(1e6), b.Data)
		return err
	}
	return nil
}

// Close finalizes the WebM container.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.videoWriter != nil {
		err = s.videoWriter.Close()
		s.videoWriter = nil
	}
	if s.audioWriter != nil {
		if cerr := s.audioWriter.Close(); err == nil {
			err = cerr
		}
		s.audioWriter = nil
	}
	s.initialized = false
	return err
}
