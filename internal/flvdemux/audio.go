package flvdemux

import "github.com/streamworks/flvdemux/internal/flvbits"

func audioRateHz(f flvbits.SoundFormat, r flvbits.SoundRate) int {
	switch f {
	case flvbits.SoundFormatNellymoser16kHz:
		return 16000
	case flvbits.SoundFormatNellymoser8kHz:
		return 8000
	case flvbits.SoundFormatMP3_8kHz:
		return 8000
	case flvbits.SoundFormatSpeex:
		return 16000
	}

	switch r {
	case flvbits.SoundRate5_5kHz:
		return 5512
	case flvbits.SoundRate11kHz:
		return 11025
	case flvbits.SoundRate22kHz:
		return 22050
	case flvbits.SoundRate44kHz:
		return 44100
	}
	return 0
}

func audioWidthBits(s flvbits.SoundSize) int {
	if s == flvbits.SoundSize16Bit {
		return 16
	}
	return 8
}

func audioChannels(t flvbits.SoundType) int {
	if t == flvbits.SoundTypeStereo {
		return 2
	}
	return 1
}

// handleAudioTag implements spec §4.4: reconcile the published audio
// format, latch HaveAllStreams if this completes stream discovery, and
// otherwise extract the tag's sample payload.
func (d *Demuxer) handleAudioTag(th flvbits.TagHeader, dh flvbits.AudioDataHeader) (Event, error) {
	if ev := d.reconcileAudioFormat(dh); ev != nil {
		return *ev, nil
	}

	ss := d.streaming
	if !ss.gotAllStreams && ss.audio != nil && (ss.video != nil || !ss.expectVideo) {
		ss.gotAllStreams = true
		return Event{Kind: EventHaveAllStreams}, nil
	}

	return d.extractAudioPayload(th, dh)
}

// reconcileAudioFormat is step 1 of §4.4: build a prospective AudioFormat
// from the tag's data header plus cached metadata/setup blob, and publish
// it if it differs from what is currently published.
func (d *Demuxer) reconcileAudioFormat(dh flvbits.AudioDataHeader) *Event {
	ss := d.streaming

	prospective := AudioFormat{
		Format:   dh.SoundFormat,
		Rate:     audioRateHz(dh.SoundFormat, dh.SoundRate),
		Width:    audioWidthBits(dh.SoundSize),
		Channels: audioChannels(dh.SoundType),
	}
	if ss.metadata != nil && ss.metadata.AudioBitrate != nil {
		b := *ss.metadata.AudioBitrate
		prospective.Bitrate = &b
	}
	if dh.SoundFormat == flvbits.SoundFormatAAC {
		prospective.AACSequenceHeader = ss.aacSequenceHeader
	}

	if ss.audio != nil && ss.audio.Equal(prospective) {
		return nil
	}

	caps, ok := prospective.Caps()
	if !ok {
		ss.audio = nil
		return nil
	}

	wasNil := ss.audio == nil
	ss.audio = &prospective
	kind := EventStreamChanged
	if wasNil {
		kind = EventStreamAdded
	}
	return &Event{Kind: kind, Stream: Stream{ID: AudioStreamID, Kind: KindAudio, Caps: caps}}
}

// extractAudioPayload is step 2 of §4.4.
func (d *Demuxer) extractAudioPayload(th flvbits.TagHeader, dh flvbits.AudioDataHeader) (Event, error) {
	total := 15 + int(th.DataSize)
	if d.adapter.Available() < total {
		return needMoreData(), nil
	}

	if dh.SoundFormat == flvbits.SoundFormatAAC {
		if th.DataSize < 2 {
			if err := d.adapter.Flush(total); err != nil {
				return Event{}, err
			}
			return again(), nil
		}

		peek := make([]byte, 17)
		if err := d.adapter.PeekInto(peek); err != nil {
			return needMoreData(), nil
		}
		aacHeader, err := flvbits.ParseAACAudioPacketHeader(peek[16:17])
		if err != nil {
			return Event{}, &FatalParseError{Reason: err.Error()}
		}

		if aacHeader.PacketType == flvbits.AACPacketTypeSequenceHeader {
			if err := d.adapter.Flush(17); err != nil {
				return Event{}, err
			}
			blob, err := d.adapter.Take(int(th.DataSize) - 2)
			if err != nil {
				return Event{}, err
			}
			d.streaming.aacSequenceHeader = append([]byte{}, blob...)
			return again(), nil
		}
		// AACPacketTypeRaw falls through to the generic path below.
	}

	if d.streaming.audio == nil {
		if err := d.adapter.Flush(total); err != nil {
			return Event{}, err
		}
		return again(), nil
	}

	if err := d.adapter.Flush(16); err != nil {
		return Event{}, err
	}

	offset := 0
	if dh.SoundFormat == flvbits.SoundFormatAAC {
		offset = 1
	}
	if th.DataSize == 0 {
		return again(), nil
	}
	if int(th.DataSize) < offset {
		if err := d.adapter.Flush(int(th.DataSize) - 1); err != nil {
			return Event{}, err
		}
		return again(), nil
	}
	if err := d.adapter.Flush(offset); err != nil {
		return Event{}, err
	}

	payload, err := d.adapter.Take(int(th.DataSize) - 1 - offset)
	if err != nil {
		return Event{}, err
	}

	buf := Buffer{Data: payload, PTS: tagTimestampNS(th)}
	d.observePosition(buf)
	return Event{Kind: EventBufferForStream, StreamID: AudioStreamID, Buffer: buf}, nil
}
