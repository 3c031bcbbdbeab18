package flvdemux

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/streamworks/flvdemux/internal/bytering"
	"github.com/streamworks/flvdemux/internal/flvbits"
)

// demuxState is the top-level state machine: Stopped, NeedHeader,
// Skipping, Streaming.
type demuxState int

const (
	stateStopped demuxState = iota
	stateNeedHeader
	stateSkipping
	stateStreaming
)

// ErrSeekUnsupported is returned by Seek: the container has no usable
// in-band index in this design.
var ErrSeekUnsupported = errors.New("flvdemux: seek is not supported")

// FatalParseError reports a malformed top-level tag header, previous-tag-size
// field, or audio/video data header encountered while in the Streaming
// state. Per spec this is unrecoverable; the host is expected to stop the
// demuxer on receiving one.
type FatalParseError struct {
	Reason string
}

func (e *FatalParseError) Error() string {
	return fmt.Sprintf("flvdemux: fatal parse failure: %s", e.Reason)
}

// skipState holds the Skipping variant's fields.
type skipState struct {
	audio, video bool
	skipLeft     uint32
}

// streamingState exists only while state == stateStreaming.
type streamingState struct {
	audio         *AudioFormat
	expectAudio   bool
	video         *VideoFormat
	expectVideo   bool
	gotAllStreams bool
	lastPosition  *int64
	metadata      *Metadata

	aacSequenceHeader []byte
	avcSequenceHeader []byte
}

// Demuxer is a single push-driven FLV demultiplexer. It is not safe for
// concurrent use; the host must serialize calls to HandleBuffer and the
// lifecycle methods.
type Demuxer struct {
	log *slog.Logger

	state     demuxState
	skip      skipState
	streaming *streamingState

	adapter *bytering.Ring
}

// New returns a Demuxer in the Stopped state. logger may be nil, in which
// case slog.Default() is used.
func New(logger *slog.Logger) *Demuxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demuxer{
		log:     logger,
		state:   stateStopped,
		adapter: bytering.New(),
	}
}

// Start transitions the demuxer into NeedHeader, ready to receive bytes.
// upstreamSize and randomAccess are accepted for interface parity with the
// host's other demuxers but are currently unused: this core never seeks.
func (d *Demuxer) Start(upstreamSize *uint64, randomAccess bool) error {
	_ = upstreamSize
	_ = randomAccess
	d.state = stateNeedHeader
	d.skip = skipState{}
	d.streaming = nil
	d.log.Debug("flvdemux started")
	return nil
}

// Stop releases all held resources: the adapter is cleared and the
// streaming state, if any, is dropped.
func (d *Demuxer) Stop() error {
	d.state = stateStopped
	d.streaming = nil
	d.adapter.Clear()
	d.log.Debug("flvdemux stopped")
	return nil
}

// EndOfStream is a no-op: any trailing buffered bytes cannot form a
// complete tag and are simply discarded with the demuxer itself.
func (d *Demuxer) EndOfStream() error {
	return nil
}

// Seek is unsupported; it always returns ErrSeekUnsupported.
func (d *Demuxer) Seek(positionNS int64) error {
	return ErrSeekUnsupported
}

// IsSeekable always reports false.
func (d *Demuxer) IsSeekable() bool {
	return false
}

// GetPosition returns the streaming state's monotonic high-water mark, or
// ok=false if the demuxer has not yet entered Streaming or emitted a
// timestamped buffer.
func (d *Demuxer) GetPosition() (ns int64, ok bool) {
	if d.streaming == nil || d.streaming.lastPosition == nil {
		return 0, false
	}
	return *d.streaming.lastPosition, true
}

// GetDuration returns the duration reported by the last accepted
// onMetaData record, or ok=false if none has arrived yet.
func (d *Demuxer) GetDuration() (ns int64, ok bool) {
	if d.streaming == nil || d.streaming.metadata == nil || d.streaming.metadata.DurationNS == nil {
		return 0, false
	}
	return *d.streaming.metadata.DurationNS, true
}

// HandleBuffer appends buf (if non-nil) to the byte adapter and runs the
// event loop exactly once, returning the single event it produces.
func (d *Demuxer) HandleBuffer(buf []byte) (Event, error) {
	if len(buf) > 0 {
		d.adapter.Push(buf)
	}
	return d.updateState()
}

// updateState is the core event loop (spec §4.1): it dispatches on the
// top-level state and returns exactly one event per call.
func (d *Demuxer) updateState() (Event, error) {
	switch d.state {
	case stateStopped:
		return Event{}, errors.New("flvdemux: update_state called while stopped; call Start first")

	case stateNeedHeader:
		return d.updateNeedHeader()

	case stateSkipping:
		return d.updateSkipping()

	case stateStreaming:
		return d.updateStreaming()
	}
	panic("flvdemux: unreachable state")
}

func (d *Demuxer) updateNeedHeader() (Event, error) {
	for {
		if d.adapter.Available() < 9 {
			return needMoreData(), nil
		}
		peek := make([]byte, 9)
		if err := d.adapter.PeekInto(peek); err != nil {
			return needMoreData(), nil
		}
		header, err := flvbits.ParseFileHeader(peek)
		if err != nil {
			// Byte-level resync: not fatal at this layer, unlike a
			// malformed tag header once Streaming.
			if err := d.adapter.Flush(1); err != nil {
				return Event{}, err
			}
			continue
		}
		if err := d.adapter.Flush(9); err != nil {
			return Event{}, err
		}
		skipLeft := uint32(0)
		if header.DataOffset > 9 {
			skipLeft = header.DataOffset - 9
		}
		d.state = stateSkipping
		d.skip = skipState{audio: header.Audio, video: header.Video, skipLeft: skipLeft}
		return again(), nil
	}
}

func (d *Demuxer) updateSkipping() (Event, error) {
	if d.skip.skipLeft == 0 {
		d.state = stateStreaming
		d.streaming = &streamingState{
			expectAudio: d.skip.audio,
			expectVideo: d.skip.video,
		}
		return again(), nil
	}

	avail := uint32(d.adapter.Available())
	if avail == 0 {
		return needMoreData(), nil
	}
	n := d.skip.skipLeft
	if avail < n {
		n = avail
	}
	if err := d.adapter.Flush(int(n)); err != nil {
		return Event{}, err
	}
	d.skip.skipLeft -= n
	return again(), nil
}

func (d *Demuxer) updateStreaming() (Event, error) {
	if d.adapter.Available() < 16 {
		return needMoreData(), nil
	}
	peek := make([]byte, 16)
	if err := d.adapter.PeekInto(peek); err != nil {
		return needMoreData(), nil
	}
	// peek[0:4] is the previous tag size: informational, consumed but
	// unused by this core.
	tagHeader, err := flvbits.ParseTagHeader(peek[4:15])
	if err != nil {
		return Event{}, &FatalParseError{Reason: err.Error()}
	}

	switch tagHeader.TagType {
	case flvbits.TagTypeScript:
		return d.handleScriptTag(tagHeader)
	case flvbits.TagTypeAudio:
		dataHeader, err := flvbits.ParseAudioDataHeader(peek[15:16])
		if err != nil {
			return Event{}, &FatalParseError{Reason: err.Error()}
		}
		return d.handleAudioTag(tagHeader, dataHeader)
	case flvbits.TagTypeVideo:
		dataHeader, err := flvbits.ParseVideoDataHeader(peek[15:16])
		if err != nil {
			return Event{}, &FatalParseError{Reason: err.Error()}
		}
		return d.handleVideoTag(tagHeader, dataHeader)
	}
	return Event{}, &FatalParseError{Reason: "unknown tag type"}
}

// tagTimestampNS converts an 11-byte tag header's 24-bit-plus-extension
// timestamp, already in milliseconds, to nanoseconds.
func tagTimestampNS(th flvbits.TagHeader) int64 {
	return int64(th.Timestamp) * 1_000_000
}

// observePosition folds a newly emitted buffer's timestamp into the
// monotonic high-water mark. Both audio and video buffers always carry a
// computed PTS in this design, so PTS is always the value folded in.
func (d *Demuxer) observePosition(b Buffer) {
	if d.streaming.lastPosition == nil || b.PTS > *d.streaming.lastPosition {
		v := b.PTS
		d.streaming.lastPosition = &v
	}
}
