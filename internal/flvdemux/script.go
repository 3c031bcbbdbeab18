package flvdemux

import "github.com/streamworks/flvdemux/internal/flvbits"

// handleScriptTag implements spec §4.3: ingest an onMetaData record and
// merge it into the streaming state.
func (d *Demuxer) handleScriptTag(th flvbits.TagHeader) (Event, error) {
	total := 15 + int(th.DataSize)
	if d.adapter.Available() < total {
		return needMoreData(), nil
	}
	if err := d.adapter.Flush(15); err != nil {
		return Event{}, err
	}
	payload, err := d.adapter.Take(int(th.DataSize))
	if err != nil {
		return Event{}, err
	}

	sd, err := flvbits.ParseScriptData(payload)
	if err != nil {
		d.log.Debug("ignoring malformed script-data tag", "error", err)
		return again(), nil
	}
	if sd.Name != "onMetaData" {
		d.log.Debug("ignoring non-metadata script tag", "name", sd.Name)
		return again(), nil
	}

	md := buildMetadata(sd)
	ss := d.streaming

	var changed []Stream
	if ss.audio != nil && ss.audio.UpdateWithMetadata(md) {
		if caps, ok := ss.audio.Caps(); ok {
			changed = append(changed, Stream{ID: AudioStreamID, Kind: KindAudio, Caps: caps})
		}
	}
	if ss.video != nil && ss.video.UpdateWithMetadata(md) {
		if caps, ok := ss.video.Caps(); ok {
			changed = append(changed, Stream{ID: VideoStreamID, Kind: KindVideo, Caps: caps})
		}
	}
	ss.metadata = &md

	if len(changed) > 0 {
		return Event{Kind: EventStreamsChanged, Streams: changed}, nil
	}
	return again(), nil
}
