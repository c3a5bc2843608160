package media

import "log/slog"

// CodecStore is satisfied by a demuxer-owned Stream registry (or test
// fakes), letting CodecDetector record a discovered codec without
// depending on the concrete demuxer implementation.
type CodecStore interface {
	SetCodec(streamID int, codec string)
	GetCodec(streamID int) string
	Name() string
}

// CodecDetector performs one-shot codec detection from a stream's first
// packet. It keeps no state of its own; state lives in the CodecStore.
type CodecDetector struct{}

// Process inspects the first packet seen for a given stream ID and
// commits the detected codec to store exactly once: detect on first
// packet, log once.
func (d *CodecDetector) Process(streamID int, codec string, store CodecStore, logger *slog.Logger) {
	if store == nil || logger == nil || codec == "" {
		return
	}
	if store.GetCodec(streamID) != "" {
		return
	}
	store.SetCodec(streamID, codec)
	logger.Info("codec detected", "component", store.Name(), "stream_id", streamID, "codec", codec)
}
