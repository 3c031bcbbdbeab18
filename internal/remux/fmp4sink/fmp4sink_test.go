package fmp4sink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamworks/flvdemux/internal/capsmap"
	"github.com/streamworks/flvdemux/internal/flvdemux"
)

var testSPS = []byte{
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
}

var testPPS = []byte{0x68, 0xce, 0x38, 0x80}

// avcDecoderConfigurationRecord builds a minimal wire-format record wrapping
// one SPS and one PPS, as an H.264 AVCSequenceHeader tag would carry.
func avcDecoderConfigurationRecord(sps, pps []byte) []byte {
	rec := []byte{1, 0x42, 0xc0, 0x28, 0xff, 0xe1}
	rec = append(rec, byte(len(sps)>>8), byte(len(sps)))
	rec = append(rec, sps...)
	rec = append(rec, 1)
	rec = append(rec, byte(len(pps)>>8), byte(len(pps)))
	rec = append(rec, pps...)
	return rec
}

// aacAudioSpecificConfig is a minimal 2-byte AudioSpecificConfig: AAC-LC,
// 44100 Hz, stereo.
var aacAudioSpecificConfig = []byte{0x12, 0x10}

func TestSinkWritesInitOnceBothStreamsKnown(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, nil)

	err := s.HandleEvent(flvdemux.Event{
		Kind: flvdemux.EventStreamAdded,
		Stream: flvdemux.Stream{
			ID: flvdemux.VideoStreamID, Kind: flvdemux.KindVideo,
			Caps: capsmap.Description{Family: "video/x-h264", Fields: map[string]any{
				"codec_data": avcDecoderConfigurationRecord(testSPS, testPPS),
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len(), "init segment must wait for both tracks")

	err = s.HandleEvent(flvdemux.Event{
		Kind: flvdemux.EventStreamAdded,
		Stream: flvdemux.Stream{
			ID: flvdemux.AudioStreamID, Kind: flvdemux.KindAudio,
			Caps: capsmap.Description{Family: "audio/mpeg", Fields: map[string]any{
				"codec_data": aacAudioSpecificConfig,
			}},
		},
	})
	require.NoError(t, err)
	assert.Greater(t, buf.Len(), 0, "init segment should be written once both tracks are known")
}

func TestSinkWritesFragmentPerBuffer(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, nil)
	require.NoError(t, s.HandleEvent(flvdemux.Event{
		Kind: flvdemux.EventStreamAdded,
		Stream: flvdemux.Stream{ID: flvdemux.VideoStreamID, Kind: flvdemux.KindVideo,
			Caps: capsmap.Description{Fields: map[string]any{
				"codec_data": avcDecoderConfigurationRecord(testSPS, testPPS),
			}}},
	}))
	require.NoError(t, s.HandleEvent(flvdemux.Event{
		Kind: flvdemux.EventStreamAdded,
		Stream: flvdemux.Stream{ID: flvdemux.AudioStreamID, Kind: flvdemux.KindAudio,
			Caps: capsmap.Description{Fields: map[string]any{"codec_data": aacAudioSpecificConfig}}},
	}))
	initLen := buf.Len()
	require.Greater(t, initLen, 0)

	require.NoError(t, s.HandleEvent(flvdemux.Event{
		Kind: flvdemux.EventBufferForStream, StreamID: flvdemux.VideoStreamID,
		Buffer: flvdemux.Buffer{Data: []byte{0, 0, 0, 5, 0x65, 1, 2, 3, 4}, PTS: 0, DTS: 0, HasDTS: true},
	}))
	assert.Greater(t, buf.Len(), initLen, "a video fragment should have been appended")
}

func TestSinkIgnoresBuffersBeforeInit(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, nil)
	err := s.HandleEvent(flvdemux.Event{
		Kind: flvdemux.EventBufferForStream, StreamID: flvdemux.VideoStreamID,
		Buffer: flvdemux.Buffer{Data: []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len())
}
