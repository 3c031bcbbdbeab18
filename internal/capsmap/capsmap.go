// Package capsmap implements the format-to-caps description mapping of the
// FLV demuxer: given a discovered audio or video format, it synthesizes the
// opaque, structured caps description a downstream decoder would need, or
// reports that none can be produced yet (AAC/H.264 before their setup blob
// has arrived, Speex, device-specific audio, reserved JPEG video).
//
// The codec-id-to-family lookup is a vishalkuo/bimap so remux sinks can go
// the other direction too: given a caps description's family name, recover
// which wire codec id produced it, without re-deriving the §4.6 table.
package capsmap

import (
	"fmt"

	"github.com/vishalkuo/bimap"

	"github.com/streamworks/flvdemux/internal/flvbits"
)

// Fraction is a numerator/denominator pair, used for pixel-aspect-ratio and
// framerate fields.
type Fraction struct {
	N, D int
}

// Description is an opaque, structured identifier of an encoding plus its
// parameters, analogous to a GStreamer caps string: a family name plus a
// set of named fields.
type Description struct {
	Family string
	Fields map[string]any
}

func newDescription(family string) Description {
	return Description{Family: family, Fields: map[string]any{}}
}

// simpleVideoFamilies maps codec ids with no extra required parameters to
// their caps family name, bidirectionally, so a remux sink can also ask
// "which codec id does this family name imply".
var simpleVideoFamilies = bimap.NewBiMap[flvbits.CodecID, string]()

func init() {
	simpleVideoFamilies.Insert(flvbits.CodecIDSorensonH263, "video/x-flash-video")
	simpleVideoFamilies.Insert(flvbits.CodecIDScreen, "video/x-flash-screen")
	simpleVideoFamilies.Insert(flvbits.CodecIDScreen2, "video/x-flash-screen2")
	simpleVideoFamilies.Insert(flvbits.CodecIDVP6, "video/x-vp6-flash")
	simpleVideoFamilies.Insert(flvbits.CodecIDVP6A, "video/x-vp6-flash-alpha")
	simpleVideoFamilies.Insert(flvbits.CodecIDH263, "video/x-h263")
}

// VideoFamilyOf recovers the codec id that produces the given simple caps
// family, for sinks that need to pick a muxer strategy from a caps
// description alone. MPEG4Part2 and H264 are handled separately by callers
// since both additionally set "mpegversion"/"stream-format" fields.
func VideoFamilyOf(family string) (flvbits.CodecID, bool) {
	return simpleVideoFamilies.GetInverse(family)
}

// AudioCaps synthesizes a caps description for an audio format, mirroring
// spec.md §4.6. It returns ok=false exactly when no caps can be produced
// yet: AAC without a cached sequence header, PCM with a zero rate or channel
// count, Speex, device-specific audio, or an unrecognized format id.
func AudioCaps(format flvbits.SoundFormat, rate, channels int, aacSequenceHeader []byte) (Description, bool) {
	var d Description
	switch format {
	case flvbits.SoundFormatMP3, flvbits.SoundFormatMP3_8kHz:
		d = newDescription("audio/mpeg")
		d.Fields["mpegversion"] = 1
		d.Fields["layer"] = 3
	case flvbits.SoundFormatPCMNE, flvbits.SoundFormatPCMLE:
		if rate == 0 || channels == 0 {
			return Description{}, false
		}
		d = newDescription("audio/x-raw")
		d.Fields["layout"] = "interleaved"
		// PCM_NE is treated as little-endian unconditionally: a deliberate,
		// pragmatic choice preserved for bit-exact parity with the source.
		d.Fields["format"] = "S16LE"
	case flvbits.SoundFormatADPCM:
		d = newDescription("audio/x-adpcm")
		d.Fields["layout"] = "swf"
	case flvbits.SoundFormatNellymoser16kHz, flvbits.SoundFormatNellymoser8kHz, flvbits.SoundFormatNellymoser:
		d = newDescription("audio/x-nellymoser")
	case flvbits.SoundFormatPCMALaw:
		d = newDescription("audio/x-alaw")
	case flvbits.SoundFormatPCMMULaw:
		d = newDescription("audio/x-mulaw")
	case flvbits.SoundFormatAAC:
		if len(aacSequenceHeader) == 0 {
			return Description{}, false
		}
		d = newDescription("audio/mpeg")
		d.Fields["mpegversion"] = 4
		d.Fields["framed"] = true
		d.Fields["stream-format"] = "raw"
		d.Fields["codec_data"] = append([]byte{}, aacSequenceHeader...)
	case flvbits.SoundFormatSpeex, flvbits.SoundFormatDeviceSpecific:
		return Description{}, false
	default:
		return Description{}, false
	}

	if rate != 0 {
		d.Fields["rate"] = rate
	}
	if channels != 0 {
		d.Fields["channels"] = channels
	}

	return d, true
}

// AudioCapsWidth overlays the U8/S16LE sample-format distinction PCM needs;
// applied to AudioCaps' result when the caller knows the sample width.
func AudioCapsWidth(d Description, format flvbits.SoundFormat, width int) Description {
	if format != flvbits.SoundFormatPCMNE && format != flvbits.SoundFormatPCMLE {
		return d
	}
	if width == 8 {
		d.Fields["format"] = "U8"
	} else {
		d.Fields["format"] = "S16LE"
	}
	return d
}

// VideoCaps synthesizes a caps description for a video format, mirroring
// spec.md §4.6. It returns ok=false exactly when no caps can be produced
// yet: H.264 without a cached AVC setup blob, the reserved JPEG id, or an
// unrecognized codec id.
func VideoCaps(format flvbits.CodecID, width, height *int, par, framerate *Fraction, avcSequenceHeader []byte) (Description, bool) {
	var d Description
	switch format {
	case flvbits.CodecIDJPEG:
		return Description{}, false
	case flvbits.CodecIDSorensonH263:
		d = newDescription("video/x-flash-video")
		d.Fields["flvversion"] = 1
	case flvbits.CodecIDScreen, flvbits.CodecIDScreen2, flvbits.CodecIDVP6, flvbits.CodecIDVP6A:
		family, ok := simpleVideoFamilies.Get(format)
		if !ok {
			return Description{}, false
		}
		d = newDescription(family)
	case flvbits.CodecIDH264:
		if len(avcSequenceHeader) == 0 {
			return Description{}, false
		}
		d = newDescription("video/x-h264")
		d.Fields["stream-format"] = "avc"
		d.Fields["codec_data"] = append([]byte{}, avcSequenceHeader...)
	case flvbits.CodecIDH263:
		d = newDescription("video/x-h263")
	case flvbits.CodecIDMPEG4Part2:
		d = newDescription("video/x-h263")
		d.Fields["mpegversion"] = 4
		d.Fields["systemstream"] = false
	default:
		return Description{}, false
	}

	if width != nil && height != nil {
		d.Fields["width"] = *width
		d.Fields["height"] = *height
	}
	if par != nil && par.N != 0 && par.D != 0 {
		d.Fields["pixel-aspect-ratio"] = *par
	}
	if framerate != nil && framerate.D != 0 {
		d.Fields["framerate"] = *framerate
	}

	return d, true
}

// String renders a Description the way a GStreamer caps string reads, for
// logging and the CLI's event trace.
func (d Description) String() string {
	s := d.Family
	for k, v := range d.Fields {
		s += fmt.Sprintf(", %s=%v", k, v)
	}
	return s
}
