// Package tssink consumes flvdemux events and writes an MPEG-TS byte
// stream, for players that cannot consume fragmented MP4. It mirrors the
// fmp4sink package's event-driven shape but muxes with go-astits instead of
// mediacommon's fmp4 writer.
package tssink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/asticode/go-astits"
	"github.com/pkg/errors"

	"github.com/streamworks/flvdemux/internal/flvbits"
	"github.com/streamworks/flvdemux/internal/flvdemux"
)

const (
	videoPID = 256
	audioPID = 257
)

// Sink writes one MPEG-TS stream to w.
type Sink struct {
	log    *slog.Logger
	mu     sync.Mutex
	muxer  *astits.Muxer
	w      io.Writer
	video  bool
	audio  bool
	tables bool
}

// New returns a Sink writing to w. logger may be nil.
func New(w io.Writer, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	m := astits.NewMuxer(context.Background(), w)
	return &Sink{log: logger, muxer: m, w: w}
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
		if st.Caps.Family != "video/x-h264" {
			return fmt.Errorf("tssink: only H.264 video is supported, got %s", st.Caps.Family)
		}
		if !s.video {
			if err := s.muxer.AddElementaryStream(astits.PMTElementaryStream{
				ElementaryPID: videoPID,
				StreamType:    astits.StreamTypeH264Video,
			}); err != nil {
				return errors.Wrap(err, "tssink: add video stream")
			}
			s.muxer.SetPCRPID(videoPID)
			s.video = true
		}
	case flvdemux.KindAudio:
		if st.Caps.Family != "audio/mpeg" {
			return fmt.Errorf("tssink: only AAC/MP3 audio is supported, got %s", st.Caps.Family)
		}
		if !s.audio {
			streamType := astits.StreamTypeAACAudio
			if st.Caps.Fields["mpegversion"] == 1 {
				streamType = astits.StreamTypeMPEG1Audio
			}
			if err := s.muxer.AddElementaryStream(astits.PMTElementaryStream{
				ElementaryPID: audioPID,
				StreamType:    streamType,
			}); err != nil {
				return errors.Wrap(err, "tssink: add audio stream")
			}
			s.audio = true
		}
	}
	if s.video && !s.tables {
		if err := s.muxer.WriteTables(); err != nil {
			return errors.Wrap(err, "tssink: write tables")
		}
		s.tables = true
	}
	return nil
}

func (s *Sink) writeSample(streamID int, b flvdemux.Buffer) error {
	if !s.tables {
		return nil
	}

	pid := uint16(audioPID)
	isVideo := streamID == flvdemux.VideoStreamID
	if isVideo {
		pid = videoPID
	}

	payload := b.Data
	if isVideo {
		// TS video elementary streams carry Annex-B NALUs; flvdemux payloads
		// arrive AVCC length-prefixed (spec.md §4.5), so convert each NALU's
		// 4-byte length prefix to a start code before muxing.
		payload = flvbits.AVCCToAnnexB(b.Data)
	}

	_, err := s.muxer.WriteData(&astits.MuxerData{
		PID: pid,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      2,
					PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
					PTS:             &astits.ClockReference{Base: ptsTo90k(b.DTSOrPTS())},
				},
			},
			Data: payload,
		},
	})
	if err != nil {
		return errors.Wrap(err, "tssink: write data")
	}
	return nil
}

func ptsTo90k(ns int64) int64 {
	if ns <= 0 {
		return 0
	}
	return (ns * 90000) / 1_000_000_000
}
