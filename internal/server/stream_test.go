package server_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sawtlabs/tahrir/internal/pipeline"
)

type wsEvent struct {
	Type              string            `json:"type"`
	Segment           *pipeline.Segment `json:"segment"`
	FullCorrectedText string            `json:"full_corrected_text"`
	ChunkCount        int               `json:"chunk_count"`
}

func TestStream_SegmentsThenDone(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, decodeModel(), correctingProvider())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	if err := conn.Write(ctx, websocket.MessageBinary, testWAV()); err != nil {
		t.Fatalf("write WAV: %v", err)
	}

	var segments []pipeline.Segment
	var done *wsEvent
	for done == nil {
		var ev wsEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		switch ev.Type {
		case "segment":
			if ev.Segment == nil {
				t.Fatal("segment event without segment payload")
			}
			segments = append(segments, *ev.Segment)
		case "done":
			done = &ev
		default:
			t.Fatalf("unexpected event type %q", ev.Type)
		}
	}

	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}
	if segments[0].CorrectedText != "اهلا." {
		t.Errorf("corrected text = %q", segments[0].CorrectedText)
	}
	if done.FullCorrectedText != "اهلا." || done.ChunkCount != 1 {
		t.Errorf("done frame = %+v", done)
	}
}

func TestStream_RejectsTextMessage(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, decodeModel(), correctingProvider())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	if err := conn.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err = conn.Read(ctx)
	var closeErr websocket.CloseError
	if !websocketCloseAs(err, &closeErr) || closeErr.Code != websocket.StatusUnsupportedData {
		t.Errorf("read after text message = %v, want close %d", err, websocket.StatusUnsupportedData)
	}
}

func websocketCloseAs(err error, target *websocket.CloseError) bool {
	if err == nil {
		return false
	}
	*target = websocket.CloseError{Code: websocket.CloseStatus(err)}
	return target.Code != -1
}
