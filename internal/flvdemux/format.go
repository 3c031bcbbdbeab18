package flvdemux

import (
	"github.com/streamworks/flvdemux/internal/capsmap"
	"github.com/streamworks/flvdemux/internal/flvbits"
)

// AudioFormat is the discovered shape of the audio elementary stream.
// Equality deliberately ignores Bitrate: two formats describe "the same
// stream" iff every other field matches, since bitrate alone never
// warrants tearing down a decoder.
type AudioFormat struct {
	Format            flvbits.SoundFormat
	Rate              int
	Width             int
	Channels          int
	Bitrate           *int
	AACSequenceHeader []byte
}

// Equal reports whether two formats describe the same stream, ignoring
// Bitrate.
func (a AudioFormat) Equal(b AudioFormat) bool {
	return a.Format == b.Format &&
		a.Rate == b.Rate &&
		a.Width == b.Width &&
		a.Channels == b.Channels &&
		string(a.AACSequenceHeader) == string(b.AACSequenceHeader)
}

// UpdateWithMetadata refreshes the fields onMetaData is allowed to drive for
// audio: Bitrate. The assignment is unconditional, matching the original:
// a later onMetaData that no longer carries a field clears it here too, and
// that clearing itself counts as a change. It reports whether anything
// actually changed.
func (a *AudioFormat) UpdateWithMetadata(m Metadata) bool {
	before := a.Bitrate
	var after *int
	if m.AudioBitrate != nil {
		v := *m.AudioBitrate
		after = &v
	}
	a.Bitrate = after
	return !intPtrEqual(before, after)
}

// Caps synthesizes a caps description for this format, or reports ok=false
// when one cannot yet be produced (AAC with no cached setup blob, Speex,
// device-specific).
func (a AudioFormat) Caps() (capsmap.Description, bool) {
	d, ok := capsmap.AudioCaps(a.Format, a.Rate, a.Channels, a.AACSequenceHeader)
	if !ok {
		return d, false
	}
	return capsmap.AudioCapsWidth(d, a.Format, a.Width), true
}

// VideoFormat is the discovered shape of the video elementary stream.
// Equality deliberately ignores Bitrate.
type VideoFormat struct {
	Format            flvbits.CodecID
	Width             *int
	Height            *int
	PixelAspectRatio  *Fraction
	Framerate         *Fraction
	Bitrate           *int
	AVCSequenceHeader []byte
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func intPtrCopy(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func fractionPtrEqual(a, b *Fraction) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func fractionPtrCopy(p *Fraction) *Fraction {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Equal reports whether two formats describe the same stream, ignoring
// Bitrate.
func (v VideoFormat) Equal(o VideoFormat) bool {
	return v.Format == o.Format &&
		intPtrEqual(v.Width, o.Width) &&
		intPtrEqual(v.Height, o.Height) &&
		fractionPtrEqual(v.PixelAspectRatio, o.PixelAspectRatio) &&
		fractionPtrEqual(v.Framerate, o.Framerate) &&
		string(v.AVCSequenceHeader) == string(o.AVCSequenceHeader)
}

// UpdateWithMetadata refreshes the fields onMetaData is allowed to drive
// for video: width, height, pixel-aspect-ratio, framerate, bitrate. Every
// assignment is unconditional, matching the original: a later onMetaData
// that no longer carries a field clears it here too, and that clearing
// itself counts as a change. It reports whether anything actually changed.
func (v *VideoFormat) UpdateWithMetadata(m Metadata) bool {
	newWidth := intPtrCopy(m.VideoWidth)
	newHeight := intPtrCopy(m.VideoHeight)
	newPAR := fractionPtrCopy(m.VideoPixelAspectRatio)
	newFramerate := fractionPtrCopy(m.VideoFramerate)
	newBitrate := intPtrCopy(m.VideoBitrate)

	changed := !intPtrEqual(v.Width, newWidth) ||
		!intPtrEqual(v.Height, newHeight) ||
		!fractionPtrEqual(v.PixelAspectRatio, newPAR) ||
		!fractionPtrEqual(v.Framerate, newFramerate) ||
		!intPtrEqual(v.Bitrate, newBitrate)

	v.Width = newWidth
	v.Height = newHeight
	v.PixelAspectRatio = newPAR
	v.Framerate = newFramerate
	v.Bitrate = newBitrate

	return changed
}

// Caps synthesizes a caps description for this format, or reports ok=false
// when one cannot yet be produced (H.264 with no cached setup blob, the
// reserved JPEG id).
func (v VideoFormat) Caps() (capsmap.Description, bool) {
	return capsmap.VideoCaps(v.Format, v.Width, v.Height, v.PixelAspectRatio, v.Framerate, v.AVCSequenceHeader)
}

// Metadata holds the subset of an onMetaData script record this demuxer
// understands.
type Metadata struct {
	DurationNS            *int64
	CreationDate          *string
	Creator               *string
	Title                 *string
	MetadataCreator       *string
	AudioBitrate          *int
	VideoWidth            *int
	VideoHeight           *int
	VideoPixelAspectRatio *Fraction
	VideoFramerate        *Fraction
	VideoBitrate          *int
}
