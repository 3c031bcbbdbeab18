package flvdemux

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(audio, video bool, dataOffset uint32) []byte {
	flags := byte(0)
	if audio {
		flags |= 0x04
	}
	if video {
		flags |= 0x01
	}
	b := make([]byte, 9)
	copy(b, "FLV")
	b[3] = 0x01
	b[4] = flags
	binary.BigEndian.PutUint32(b[5:9], dataOffset)
	return b
}

func tagBytes(tagType byte, timestampMs uint32, payload []byte) []byte {
	b := make([]byte, 4+11+len(payload))
	// previous tag size left as zero: unused by the demuxer.
	header := b[4:15]
	header[0] = tagType
	dataSize := uint32(len(payload))
	header[1] = byte(dataSize >> 16)
	header[2] = byte(dataSize >> 8)
	header[3] = byte(dataSize)
	header[4] = byte(timestampMs >> 16)
	header[5] = byte(timestampMs >> 8)
	header[6] = byte(timestampMs)
	header[7] = byte(timestampMs >> 24)
	copy(b[15:], payload)
	return b
}

func amf0TypedString(s string) []byte {
	out := []byte{0x02, byte(len(s) >> 8), byte(len(s))}
	return append(out, s...)
}

func amf0RawString(s string) []byte {
	out := []byte{byte(len(s) >> 8), byte(len(s))}
	return append(out, s...)
}

func amf0Number(v float64) []byte {
	out := make([]byte, 9)
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		out[1+i] = byte(bits >> (56 - 8*i))
	}
	return out
}

// onMetaDataSingleProperty encodes a minimal onMetaData AMF0 record
// carrying exactly one numeric property.
func onMetaDataSingleProperty(name string, value float64) []byte {
	var buf []byte
	buf = append(buf, amf0TypedString("onMetaData")...)
	buf = append(buf, 0x08, 0, 0, 0, 1) // ECMAArray, 1 property
	buf = append(buf, amf0RawString(name)...)
	buf = append(buf, amf0Number(value)...)
	buf = append(buf, 0, 0, 0x09) // object end
	return buf
}

// pushAndDrain pushes buf (nil pushes nothing new) and keeps polling the
// event loop until it returns something other than Again, which it
// returns. Each call advances the state machine by exactly one step per
// spec, so intermediate Again events are transparent to callers that only
// care about the next substantive event.
func pushAndDrain(t *testing.T, d *Demuxer, buf []byte) Event {
	t.Helper()
	ev, err := d.HandleBuffer(buf)
	require.NoError(t, err)
	for ev.Kind == EventAgain {
		ev, err = d.HandleBuffer(nil)
		require.NoError(t, err)
	}
	return ev
}

func TestScenario1_HeaderOnlyNeedsMoreData(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))

	ev := pushAndDrain(t, d, fileHeader(true, true, 9))
	assert.Equal(t, EventNeedMoreData, ev.Kind)
}

func TestScenario2_HeaderWithPadding(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))

	buf := fileHeader(true, true, 13)
	buf = append(buf, []byte{0, 0, 0, 0}...) // 4 bytes of padding before the first tag

	ev := pushAndDrain(t, d, buf)
	assert.Equal(t, EventNeedMoreData, ev.Kind)
	assert.Equal(t, stateStreaming, d.state)
	require.NotNil(t, d.streaming)
	assert.True(t, d.streaming.expectAudio)
	assert.True(t, d.streaming.expectVideo)
}

func TestScenario3_RawMP3AudioOnly(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))

	require.Equal(t, EventNeedMoreData, pushAndDrain(t, d, fileHeader(true, false, 9)).Kind)

	payload := make([]byte, 1+10)
	payload[0] = 0x2F // MP3, 44kHz, 16-bit, stereo
	added := pushAndDrain(t, d, tagBytes(8, 0, payload))
	require.Equal(t, EventStreamAdded, added.Kind)
	assert.Equal(t, KindAudio, added.Stream.Kind)
	assert.Equal(t, "audio/mpeg", added.Stream.Caps.Family)
	assert.Equal(t, 44100, added.Stream.Caps.Fields["rate"])
	assert.Equal(t, 2, added.Stream.Caps.Fields["channels"])

	have := pushAndDrain(t, d, nil)
	assert.Equal(t, EventHaveAllStreams, have.Kind)

	buf := pushAndDrain(t, d, nil)
	require.Equal(t, EventBufferForStream, buf.Kind)
	assert.Equal(t, AudioStreamID, buf.StreamID)
	assert.Equal(t, int64(0), buf.Buffer.PTS)
	assert.Len(t, buf.Buffer.Data, 10)
}

func TestScenario4_AACSetupThenSample(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	require.Equal(t, EventNeedMoreData, pushAndDrain(t, d, fileHeader(true, false, 9)).Kind)

	seqPayload := append([]byte{0xAF, 0}, make([]byte, 5)...) // AAC, SequenceHeader, 5-byte blob
	again := pushAndDrain(t, d, tagBytes(8, 0, seqPayload))
	assert.Equal(t, EventNeedMoreData, again.Kind) // tag fully consumed, ring now empty
	assert.Len(t, d.streaming.aacSequenceHeader, 5)

	rawPayload := append([]byte{0xAF, 1}, make([]byte, 20)...) // AAC, Raw, 20-byte frame
	added := pushAndDrain(t, d, tagBytes(8, 23, rawPayload))
	require.Equal(t, EventStreamAdded, added.Kind)
	assert.Equal(t, "audio/mpeg", added.Stream.Caps.Family)
	assert.Equal(t, 4, added.Stream.Caps.Fields["mpegversion"])
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, added.Stream.Caps.Fields["codec_data"])

	have := pushAndDrain(t, d, nil)
	assert.Equal(t, EventHaveAllStreams, have.Kind)

	buf := pushAndDrain(t, d, nil)
	require.Equal(t, EventBufferForStream, buf.Kind)
	assert.Equal(t, int64(23*1_000_000), buf.Buffer.PTS)
	assert.Len(t, buf.Buffer.Data, 20)
}

func TestScenario5_H264WithNegativeCTS(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	require.Equal(t, EventNeedMoreData, pushAndDrain(t, d, fileHeader(false, true, 9)).Kind)

	seqPayload := append([]byte{0x17, 0, 0, 0, 0}, make([]byte, 7)...) // key+H264, SequenceHeader, cts=0, 7-byte blob
	again := pushAndDrain(t, d, tagBytes(9, 0, seqPayload))
	assert.Equal(t, EventNeedMoreData, again.Kind)
	assert.Len(t, d.streaming.avcSequenceHeader, 7)

	// NALU, inter frame, cts = -40ms (0xffffd8), 300-byte payload.
	naluPayload := append([]byte{0x27, 1, 0xff, 0xff, 0xd8}, make([]byte, 300)...)
	added := pushAndDrain(t, d, tagBytes(9, 100, naluPayload))
	require.Equal(t, EventStreamAdded, added.Kind)
	assert.Equal(t, "video/x-h264", added.Stream.Caps.Family)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0}, added.Stream.Caps.Fields["codec_data"])

	have := pushAndDrain(t, d, nil)
	assert.Equal(t, EventHaveAllStreams, have.Kind)

	buf := pushAndDrain(t, d, nil)
	require.Equal(t, EventBufferForStream, buf.Kind)
	assert.Equal(t, VideoStreamID, buf.StreamID)
	assert.Equal(t, int64(100*1_000_000), buf.Buffer.DTS)
	assert.Equal(t, int64(60*1_000_000), buf.Buffer.PTS)
	assert.True(t, buf.Buffer.DeltaUnit)
	assert.Len(t, buf.Buffer.Data, 300)
}

func TestScenario6_BitrateOnlyMetadataChangeEmitsStreamsChanged(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	require.Equal(t, EventNeedMoreData, pushAndDrain(t, d, fileHeader(true, false, 9)).Kind)

	payload := make([]byte, 1+10)
	payload[0] = 0x2F
	require.Equal(t, EventStreamAdded, pushAndDrain(t, d, tagBytes(8, 0, payload)).Kind)
	require.Equal(t, EventHaveAllStreams, pushAndDrain(t, d, nil).Kind)
	require.Equal(t, EventBufferForStream, pushAndDrain(t, d, nil).Kind)

	scriptPayload := onMetaDataSingleProperty("audiodatarate", 128)
	ev := pushAndDrain(t, d, tagBytes(18, 0, scriptPayload))
	require.Equal(t, EventStreamsChanged, ev.Kind)
	require.Len(t, ev.Streams, 1)
	assert.Equal(t, KindAudio, ev.Streams[0].Kind)
}

// driveAll feeds chunks to a fresh demuxer one at a time, draining every
// Again in between, and returns every meaningful event observed (Stream*,
// HaveAllStreams, BufferForStream) in order.
func driveAll(t *testing.T, chunks [][]byte) []Event {
	t.Helper()
	d := New(nil)
	require.NoError(t, d.Start(nil, false))

	var meaningful []Event
	for _, c := range chunks {
		ev := pushAndDrain(t, d, c)
		for ev.Kind != EventNeedMoreData {
			meaningful = append(meaningful, ev)
			ev = pushAndDrain(t, d, nil)
		}
	}
	return meaningful
}

// partition splits whole into chunks, cycling through sizes repeatedly
// until every byte has been assigned to some chunk.
func partition(whole []byte, sizes []int) [][]byte {
	var chunks [][]byte
	pos := 0
	i := 0
	for pos < len(whole) {
		n := sizes[i%len(sizes)]
		i++
		end := pos + n
		if end > len(whole) {
			end = len(whole)
		}
		chunks = append(chunks, whole[pos:end])
		pos = end
	}
	return chunks
}

func TestChunkingIndependence(t *testing.T) {
	whole := append(fileHeader(true, false, 9), tagBytes(8, 0, append([]byte{0x2F}, make([]byte, 10)...))...)

	whole1 := driveAll(t, [][]byte{whole})
	whole2 := driveAll(t, partition(whole, []int{1}))
	whole3 := driveAll(t, partition(whole, []int{3}))

	require.NotEmpty(t, whole1)
	assert.Equal(t, whole1, whole2)
	assert.Equal(t, whole1, whole3)
}

func TestIdempotentPollingAfterNeedMoreData(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	ev1, err := d.HandleBuffer([]byte("FLV"))
	require.NoError(t, err)
	assert.Equal(t, EventNeedMoreData, ev1.Kind)

	ev2, err := d.HandleBuffer(nil)
	require.NoError(t, err)
	assert.Equal(t, EventNeedMoreData, ev2.Kind)
	assert.Equal(t, 3, d.adapter.Available())
}

func TestMonotonicPosition(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	require.Equal(t, EventNeedMoreData, pushAndDrain(t, d, fileHeader(true, false, 9)).Kind)

	for i, ts := range []uint32{0, 10, 30, 20} {
		payload := append([]byte{0x2F}, make([]byte, 10)...)
		ev := pushAndDrain(t, d, tagBytes(8, ts, payload))
		if i == 0 {
			require.Equal(t, EventStreamAdded, ev.Kind)
			ev = pushAndDrain(t, d, nil)
			require.Equal(t, EventHaveAllStreams, ev.Kind)
			ev = pushAndDrain(t, d, nil)
		}
		require.Equal(t, EventBufferForStream, ev.Kind)

		pos, ok := d.GetPosition()
		require.True(t, ok)
		assert.GreaterOrEqual(t, pos, int64(0))
	}
	pos, ok := d.GetPosition()
	require.True(t, ok)
	assert.Equal(t, int64(30*1_000_000), pos) // high-water mark, ts=20 never lowers it
}

func TestSeekIsUnsupported(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	assert.ErrorIs(t, d.Seek(0), ErrSeekUnsupported)
	assert.False(t, d.IsSeekable())
}

func TestDurationFromMetadata(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	require.Equal(t, EventNeedMoreData, pushAndDrain(t, d, fileHeader(true, false, 9)).Kind)

	payload := append([]byte{0x2F}, make([]byte, 10)...)
	require.Equal(t, EventStreamAdded, pushAndDrain(t, d, tagBytes(8, 0, payload)).Kind)
	require.Equal(t, EventHaveAllStreams, pushAndDrain(t, d, nil).Kind)
	require.Equal(t, EventBufferForStream, pushAndDrain(t, d, nil).Kind)

	scriptBuf := onMetaDataSingleProperty("duration", 12.5)
	// duration alone does not drive AudioFormat.UpdateWithMetadata, so no
	// stream event is produced; the loop settles back on NeedMoreData.
	ev := pushAndDrain(t, d, tagBytes(18, 0, scriptBuf))
	assert.Equal(t, EventNeedMoreData, ev.Kind)

	dur, ok := d.GetDuration()
	require.True(t, ok)
	assert.Equal(t, int64(12.5*1e9), dur)
}

func TestPayloadOffsetsVP6(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Start(nil, false))
	require.Equal(t, EventNeedMoreData, pushAndDrain(t, d, fileHeader(false, true, 9)).Kind)

	payload := append([]byte{0x14, 0x00}, make([]byte, 50)...) // key+VP6, 1 extra byte, 50-byte frame
	added := pushAndDrain(t, d, tagBytes(9, 0, payload))
	require.Equal(t, EventStreamAdded, added.Kind)

	have := pushAndDrain(t, d, nil)
	assert.Equal(t, EventHaveAllStreams, have.Kind)

	buf := pushAndDrain(t, d, nil)
	require.Equal(t, EventBufferForStream, buf.Kind)
	assert.Len(t, buf.Buffer.Data, 50)
	assert.False(t, buf.Buffer.DeltaUnit)
}
