package flvbits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileHeader(t *testing.T) {
	data := []byte("FLV\x01\x05\x00\x00\x00\x09")
	h, err := ParseFileHeader(data)
	require.NoError(t, err)
	assert.True(t, h.Audio)
	assert.True(t, h.Video)
	assert.Equal(t, uint32(9), h.DataOffset)
}

func TestParseFileHeaderVideoOnly(t *testing.T) {
	data := []byte("FLV\x01\x01\x00\x00\x00\x09")
	h, err := ParseFileHeader(data)
	require.NoError(t, err)
	assert.False(t, h.Audio)
	assert.True(t, h.Video)
}

func TestParseFileHeaderBadSignature(t *testing.T) {
	_, err := ParseFileHeader([]byte("XLV\x01\x05\x00\x00\x00\x09"))
	assert.Error(t, err)
}

func TestParseFileHeaderIncomplete(t *testing.T) {
	_, err := ParseFileHeader([]byte("FLV\x01"))
	assert.Error(t, err)
}

func TestParseTagHeader(t *testing.T) {
	// audio tag, data_size=10, timestamp=0x01020304 (ext byte high), stream id 0
	data := []byte{8, 0x00, 0x00, 0x0a, 0x02, 0x03, 0x04, 0x01, 0x00, 0x00, 0x00}
	th, err := ParseTagHeader(data)
	require.NoError(t, err)
	assert.Equal(t, TagTypeAudio, th.TagType)
	assert.Equal(t, uint32(10), th.DataSize)
	assert.Equal(t, uint32(0x01020304), th.Timestamp)
	assert.Equal(t, uint32(0), th.StreamID)
}

func TestParseTagHeaderUnknownType(t *testing.T) {
	data := []byte{5, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err := ParseTagHeader(data)
	assert.Error(t, err)
}

func TestParseAudioDataHeaderMP3Stereo16(t *testing.T) {
	// format=MP3(2) rate=44kHz(3) size=16bit(1) type=stereo(1) => 0010 11 1 1 = 0x2F
	b := []byte{0x2F}
	h, err := ParseAudioDataHeader(b)
	require.NoError(t, err)
	assert.Equal(t, SoundFormatMP3, h.SoundFormat)
	assert.Equal(t, SoundRate44kHz, h.SoundRate)
	assert.Equal(t, SoundSize16Bit, h.SoundSize)
	assert.Equal(t, SoundTypeStereo, h.SoundType)
}

func TestParseVideoDataHeaderKeyframeH264(t *testing.T) {
	b := []byte{0x17} // key(1) h264(7)
	h, err := ParseVideoDataHeader(b)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeKey, h.FrameType)
	assert.Equal(t, CodecIDH264, h.CodecID)
}

func TestParseAVCVideoPacketHeaderNegativeCTS(t *testing.T) {
	// NALU, cts = -40 (0xffffd8 in 24-bit two's complement)
	b := []byte{1, 0xff, 0xff, 0xd8}
	h, err := ParseAVCVideoPacketHeader(b)
	require.NoError(t, err)
	assert.Equal(t, AVCPacketTypeNALU, h.PacketType)
	assert.Equal(t, int32(-40), h.CompositionTime)
}

func TestParseAVCVideoPacketHeaderPositiveCTS(t *testing.T) {
	b := []byte{0, 0x00, 0x00, 0x28} // SequenceHeader, cts=40 (ignored for seq hdr but still parsed)
	h, err := ParseAVCVideoPacketHeader(b)
	require.NoError(t, err)
	assert.Equal(t, AVCPacketTypeSequenceHeader, h.PacketType)
	assert.Equal(t, int32(40), h.CompositionTime)
}

func TestParseAACAudioPacketHeader(t *testing.T) {
	h, err := ParseAACAudioPacketHeader([]byte{0})
	require.NoError(t, err)
	assert.Equal(t, AACPacketTypeSequenceHeader, h.PacketType)

	h, err = ParseAACAudioPacketHeader([]byte{1})
	require.NoError(t, err)
	assert.Equal(t, AACPacketTypeRaw, h.PacketType)

	_, err = ParseAACAudioPacketHeader([]byte{2})
	assert.Error(t, err)
}

func numberValue(v float64) ScriptDataValue {
	return ScriptDataValue{Kind: ScriptDataKindNumber, Number: v}
}

func encodeAMF0String(s string) []byte {
	out := []byte{amf0String, byte(len(s) >> 8), byte(len(s))}
	return append(out, s...)
}

func encodeAMF0RawString(s string) []byte {
	out := []byte{byte(len(s) >> 8), byte(len(s))}
	return append(out, s...)
}

func encodeAMF0Number(v float64) []byte {
	out := []byte{amf0Number, 0, 0, 0, 0, 0, 0, 0, 0}
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		out[1+i] = byte(bits >> (56 - 8*i))
	}
	return out
}

func TestParseScriptDataOnMetaData(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeAMF0String("onMetaData")...)
	buf = append(buf, amf0ECMAArray)
	buf = append(buf, 0, 0, 0, 2) // 2 properties
	buf = append(buf, encodeAMF0RawString("duration")...)
	buf = append(buf, encodeAMF0Number(12.5)...)
	buf = append(buf, encodeAMF0RawString("width")...)
	buf = append(buf, encodeAMF0Number(1920)...)
	buf = append(buf, 0, 0, amf0ObjectEnd)

	sd, err := ParseScriptData(buf)
	require.NoError(t, err)
	assert.Equal(t, "onMetaData", sd.Name)
	require.Equal(t, ScriptDataKindObject, sd.Argument.Kind)
	require.Len(t, sd.Argument.Object, 2)
	assert.Equal(t, "duration", sd.Argument.Object[0].Name)
	assert.Equal(t, numberValue(12.5), sd.Argument.Object[0].Value)
	assert.Equal(t, "width", sd.Argument.Object[1].Name)
	assert.Equal(t, numberValue(1920), sd.Argument.Object[1].Value)
}

func TestParseScriptDataIncomplete(t *testing.T) {
	_, err := ParseScriptData([]byte{amf0String, 0, 5, 'h', 'i'})
	assert.Error(t, err)
}
