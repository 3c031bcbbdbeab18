// Package flvdemux implements the push-mode FLV container demultiplexer:
// a resumable state machine that turns an arbitrarily fragmented byte
// stream into discovered audio/video stream descriptions and timestamped
// sample buffers. The demuxer never blocks and never seeks; it is driven
// entirely by HandleBuffer calls from a host pipeline.
package flvdemux

import (
	"github.com/streamworks/flvdemux/internal/capsmap"
)

// Fraction is re-exported from capsmap so callers of this package never
// need to import capsmap directly just to read a framerate or PAR.
type Fraction = capsmap.Fraction

// Stream ids are fixed constants, not assigned dynamically: audio is
// always 0, video is always 1.
const (
	AudioStreamID = 0
	VideoStreamID = 1
)

// Kind distinguishes the two possible stream kinds carried on a Stream.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Stream describes one discovered elementary stream: a fixed id, its kind,
// and the caps description a decoder would need to configure itself.
type Stream struct {
	ID   int
	Kind Kind
	Caps capsmap.Description
}

// Buffer is one timestamped sample ready for a downstream consumer.
type Buffer struct {
	Data []byte

	// PTS/DTS are nanoseconds since the start of the stream. HasDTS is
	// false for audio buffers, which carry only a presentation timestamp.
	PTS    int64
	DTS    int64
	HasDTS bool

	// DeltaUnit is true for video buffers that are not independently
	// decodable (non-keyframes). Always false for audio.
	DeltaUnit bool
}

// EventKind tags the active payload of an Event.
type EventKind int

const (
	// EventNeedMoreData signals the host must push more bytes before the
	// loop can make progress.
	EventNeedMoreData EventKind = iota
	// EventAgain signals the host should call HandleBuffer again
	// immediately, with no new bytes required.
	EventAgain
	// EventStreamAdded carries a newly discovered stream.
	EventStreamAdded
	// EventStreamChanged carries an existing stream whose description
	// changed.
	EventStreamChanged
	// EventStreamsChanged carries one or more streams reconfigured
	// together, emitted from the metadata path.
	EventStreamsChanged
	// EventHaveAllStreams signals every stream advertised by the file
	// header has now been announced.
	EventHaveAllStreams
	// EventBufferForStream carries one timestamped sample buffer.
	EventBufferForStream
)

// Event is the single result of one HandleBuffer call. Exactly one field
// group is meaningful, selected by Kind.
type Event struct {
	Kind EventKind

	Stream   Stream   // EventStreamAdded, EventStreamChanged
	Streams  []Stream // EventStreamsChanged
	StreamID int      // EventBufferForStream
	Buffer   Buffer   // EventBufferForStream
}

func needMoreData() Event { return Event{Kind: EventNeedMoreData} }
func again() Event         { return Event{Kind: EventAgain} }

// DTSOrPTS returns DTS when the buffer carries one, and PTS otherwise: the
// decode-order timestamp a remux sink should key its track timeline on.
func (b Buffer) DTSOrPTS() int64 {
	if b.HasDTS {
		return b.DTS
	}
	return b.PTS
}
