package flvdemux

import "github.com/streamworks/flvdemux/internal/flvbits"

func videoPayloadOffset(codec flvbits.CodecID) int {
	switch codec {
	case flvbits.CodecIDVP6, flvbits.CodecIDVP6A:
		return 1
	case flvbits.CodecIDH264:
		return 4
	}
	return 0
}

// handleVideoTag implements spec §4.5: reconcile the published video
// format, latch HaveAllStreams if this completes stream discovery, and
// otherwise extract the tag's sample payload.
func (d *Demuxer) handleVideoTag(th flvbits.TagHeader, dh flvbits.VideoDataHeader) (Event, error) {
	if ev := d.reconcileVideoFormat(dh); ev != nil {
		return *ev, nil
	}

	ss := d.streaming
	if !ss.gotAllStreams && ss.video != nil && (ss.audio != nil || !ss.expectAudio) {
		ss.gotAllStreams = true
		return Event{Kind: EventHaveAllStreams}, nil
	}

	return d.extractVideoPayload(th, dh)
}

// reconcileVideoFormat is step 1 of §4.5: build a prospective VideoFormat
// from cached metadata and the AVC setup blob, and publish it if it
// differs from what is currently published.
func (d *Demuxer) reconcileVideoFormat(dh flvbits.VideoDataHeader) *Event {
	ss := d.streaming

	prospective := VideoFormat{Format: dh.CodecID}
	if ss.metadata != nil {
		prospective.Width = ss.metadata.VideoWidth
		prospective.Height = ss.metadata.VideoHeight
		prospective.PixelAspectRatio = ss.metadata.VideoPixelAspectRatio
		prospective.Framerate = ss.metadata.VideoFramerate
		prospective.Bitrate = ss.metadata.VideoBitrate
	}
	if dh.CodecID == flvbits.CodecIDH264 {
		prospective.AVCSequenceHeader = ss.avcSequenceHeader
	}

	if ss.video != nil && ss.video.Equal(prospective) {
		return nil
	}

	caps, ok := prospective.Caps()
	if !ok {
		ss.video = nil
		return nil
	}

	wasNil := ss.video == nil
	ss.video = &prospective
	kind := EventStreamChanged
	if wasNil {
		kind = EventStreamAdded
	}
	return &Event{Kind: kind, Stream: Stream{ID: VideoStreamID, Kind: KindVideo, Caps: caps}}
}

// extractVideoPayload is step 2 of §4.5.
func (d *Demuxer) extractVideoPayload(th flvbits.TagHeader, dh flvbits.VideoDataHeader) (Event, error) {
	total := 15 + int(th.DataSize)
	if d.adapter.Available() < total {
		return needMoreData(), nil
	}

	cts := int32(0)
	if dh.CodecID == flvbits.CodecIDH264 {
		if th.DataSize < 5 {
			if err := d.adapter.Flush(total); err != nil {
				return Event{}, err
			}
			return again(), nil
		}

		peek := make([]byte, 20)
		if err := d.adapter.PeekInto(peek); err != nil {
			return needMoreData(), nil
		}
		avcHeader, err := flvbits.ParseAVCVideoPacketHeader(peek[16:20])
		if err != nil {
			return Event{}, &FatalParseError{Reason: err.Error()}
		}

		switch avcHeader.PacketType {
		case flvbits.AVCPacketTypeSequenceHeader:
			if err := d.adapter.Flush(20); err != nil {
				return Event{}, err
			}
			blob, err := d.adapter.Take(int(th.DataSize) - 5)
			if err != nil {
				return Event{}, err
			}
			d.streaming.avcSequenceHeader = append([]byte{}, blob...)
			return again(), nil
		case flvbits.AVCPacketTypeEndOfSequence:
			if err := d.adapter.Flush(total); err != nil {
				return Event{}, err
			}
			return again(), nil
		default: // AVCPacketTypeNALU
			cts = avcHeader.CompositionTime
		}
	}

	if d.streaming.video == nil {
		if err := d.adapter.Flush(total); err != nil {
			return Event{}, err
		}
		return again(), nil
	}

	if err := d.adapter.Flush(16); err != nil {
		return Event{}, err
	}

	offset := videoPayloadOffset(dh.CodecID)
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

	dts := tagTimestampNS(th)
	ptsMs := int64(th.Timestamp) + int64(cts)
	var ptsNS int64
	if ptsMs > 0 {
		ptsNS = ptsMs * 1_000_000
	}

	buf := Buffer{
		Data:      payload,
		PTS:       ptsNS,
		DTS:       dts,
		HasDTS:    true,
		DeltaUnit: dh.FrameType != flvbits.FrameTypeKey,
	}
	d.observePosition(buf)
	return Event{Kind: EventBufferForStream, StreamID: VideoStreamID, Buffer: buf}, nil
}
