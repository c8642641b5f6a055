package server

import (
	"bytes"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sawtlabs/tahrir/internal/observe"
	"github.com/sawtlabs/tahrir/internal/pipeline"
	"github.com/sawtlabs/tahrir/pkg/audio"
)

// streamEvent is one WebSocket message on /v1/stream. Type is "segment" while
// segments flow and "done" for the final summary frame.
type streamEvent struct {
	Type              string            `json:"type"`
	Segment           *pipeline.Segment `json:"segment,omitempty"`
	FullRawText       string            `json:"full_raw_text,omitempty"`
	FullCorrectedText string            `json:"full_corrected_text,omitempty"`
	ChunkCount        int               `json:"chunk_count,omitempty"`
	DurationSeconds   float64           `json:"duration_seconds,omitempty"`
}

// handleStream upgrades to a WebSocket, reads one binary WAV message, and
// writes each segment as soon as it is corrected, followed by a "done" frame
// with the assembled texts.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	log := observe.Logger(ctx)

	msgType, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if msgType != websocket.MessageBinary {
		conn.Close(websocket.StatusUnsupportedData, "expected one binary WAV message")
		return
	}

	samples, channels, rate, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		conn.Close(websocket.StatusUnsupportedData, "undecodable WAV payload")
		return
	}

	segments, result, err := s.pipe.Stream(ctx, samples, channels, rate)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "pipeline start failed")
		return
	}

	for seg := range segments {
		if err := wsjson.Write(ctx, conn, streamEvent{Type: "segment", Segment: &seg}); err != nil {
			log.Warn("stream write failed", "error", err)
			return
		}
	}

	out, err := result()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "pipeline failed")
		return
	}
	done := streamEvent{
		Type:              "done",
		FullRawText:       out.FullRawText,
		FullCorrectedText: out.FullCorrectedText,
		ChunkCount:        out.Metadata.ChunkCount,
		DurationSeconds:   out.Metadata.DurationSeconds,
	}
	if err := wsjson.Write(ctx, conn, done); err != nil {
		log.Warn("stream write failed", "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "transcription complete")
}
