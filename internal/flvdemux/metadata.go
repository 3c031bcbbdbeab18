package flvdemux

import (
	"math"

	"github.com/streamworks/flvdemux/internal/flvbits"
)

// buildMetadata extracts the recognized onMetaData keys from a decoded
// script-data argument object into a Metadata record. Unrecognized keys,
// and keys of the wrong kind, are silently ignored.
func buildMetadata(sd flvbits.ScriptData) Metadata {
	var m Metadata
	var aspectX, aspectY *float64

	for _, prop := range sd.Argument.Object {
		switch prop.Name {
		case "duration":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				ns := int64(prop.Value.Number * 1e9)
				m.DurationNS = &ns
			}
		case "creationdate":
			if prop.Value.Kind == flvbits.ScriptDataKindString {
				s := prop.Value.Str
				m.CreationDate = &s
			}
		case "creator":
			if prop.Value.Kind == flvbits.ScriptDataKindString {
				s := prop.Value.Str
				m.Creator = &s
			}
		case "title":
			if prop.Value.Kind == flvbits.ScriptDataKindString {
				s := prop.Value.Str
				m.Title = &s
			}
		case "metadatacreator":
			if prop.Value.Kind == flvbits.ScriptDataKindString {
				s := prop.Value.Str
				m.MetadataCreator = &s
			}
		case "audiodatarate":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				bps := int(prop.Value.Number * 1024)
				m.AudioBitrate = &bps
			}
		case "videodatarate":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				bps := int(prop.Value.Number * 1024)
				m.VideoBitrate = &bps
			}
		case "width":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				w := int(prop.Value.Number)
				m.VideoWidth = &w
			}
		case "height":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				h := int(prop.Value.Number)
				m.VideoHeight = &h
			}
		case "framerate":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				if fr, ok := fractionFromFloat(prop.Value.Number); ok {
					m.VideoFramerate = &fr
				}
			}
		case "AspectRatioX":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				v := prop.Value.Number
				aspectX = &v
			}
		case "AspectRatioY":
			if prop.Value.Kind == flvbits.ScriptDataKindNumber {
				v := prop.Value.Number
				aspectY = &v
			}
		}
	}

	if aspectX != nil && aspectY != nil {
		par := Fraction{N: int(*aspectX), D: int(*aspectY)}
		m.VideoPixelAspectRatio = &par
	}

	return m
}

// fractionFromFloat approximates a decimal framerate as a small rational,
// dropping values that are negative, zero, or non-finite. Common NTSC-ish
// rates (23.976, 29.97, 59.94, ...) resolve to their canonical /1001
// fractions; everything else falls back to a fixed-precision fraction over
// 1000.
func fractionFromFloat(f float64) (Fraction, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return Fraction{}, false
	}

	ntsc := map[int]Fraction{
		24:  {24000, 1001},
		30:  {30000, 1001},
		60:  {60000, 1001},
		120: {120000, 1001},
	}
	for base, fr := range ntsc {
		if math.Abs(f-float64(base)*1000.0/1001.0) < 0.01 {
			return fr, true
		}
	}

	const denom = 1000
	n := int(math.Round(f * denom))
	if n <= 0 {
		return Fraction{}, false
	}
	g := gcd(n, denom)
	return Fraction{N: n / g, D: denom / g}, true
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
