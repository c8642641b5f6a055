// Package seamless provides a SpeechModel backed by a SeamlessM4T inference
// server.
//
// The server exposes a REST API at POST /inference accepting a WAV upload and
// returning the decoded text along with the per-step token probabilities the
// decoder produced, so the caller can derive an entropy-based confidence
// score. The heavyweight model stays resident in the server process; this
// client holds no state beyond an HTTP client.
//
// Usage:
//
//	m, err := seamless.New("http://localhost:8571",
//	    seamless.WithTimeout(60*time.Second),
//	)
//	res, err := m.Decode(ctx, samples, 16000, "arb")
package seamless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sawtlabs/tahrir/pkg/audio"
	"github.com/sawtlabs/tahrir/pkg/provider/asr"
)

const (
	defaultTimeout = 120 * time.Second
)

// Compile-time assertion that Model implements asr.SpeechModel.
var _ asr.SpeechModel = (*Model)(nil)

// Option is a functional option for configuring a Model.
type Option func(*Model)

// WithModel sets the model identifier forwarded to the inference server
// (e.g., "seamless-m4t-v2-large"). When empty the server uses whichever
// model it was started with — this is the default.
func WithModel(model string) Option {
	return func(m *Model) { m.model = model }
}

// WithTimeout sets the HTTP request timeout for a single inference call.
// Long recordings decode one chunk at a time, so this bounds a single
// chunk's decode, not the whole file. Defaults to 120 s.
func WithTimeout(d time.Duration) Option {
	return func(m *Model) { m.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
// Mainly useful for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Model) { m.httpClient = c }
}

// Model implements asr.SpeechModel against a SeamlessM4T HTTP server.
// It is safe for concurrent use; serialization of requests, when the server
// needs it, is the pipeline's responsibility.
type Model struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a Model that connects to the inference server at serverURL
// (e.g., "http://localhost:8571"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Model, error) {
	if serverURL == "" {
		return nil, errors.New("seamless: serverURL must not be empty")
	}
	m := &Model{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// inferenceResponse is the JSON structure returned by the inference server.
// token_probs carries one probability vector per decoding step (the server
// truncates each vector to its top entries; the remaining mass is implied),
// and vocab_size is the decoder's vocabulary size for entropy normalization.
type inferenceResponse struct {
	Text       string      `json:"text"`
	TokenProbs [][]float64 `json:"token_probs"`
	VocabSize  int         `json:"vocab_size"`
}

// Decode encodes samples as WAV, POSTs them to the server's /inference
// endpoint as multipart/form-data, and parses the response into an
// asr.Result.
func (m *Model) Decode(ctx context.Context, samples []float32, sampleRate int, targetLang string) (*asr.Result, error) {
	wavData := audio.EncodeWAV(samples, sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, fmt.Errorf("seamless: create form file: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return nil, fmt.Errorf("seamless: write wav data: %w", err)
	}

	if targetLang != "" {
		if err := mw.WriteField("tgt_lang", targetLang); err != nil {
			return nil, fmt.Errorf("seamless: write tgt_lang field: %w", err)
		}
	}
	if m.model != "" {
		if err := mw.WriteField("model", m.model); err != nil {
			return nil, fmt.Errorf("seamless: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("seamless: close multipart writer: %w", err)
	}

	endpoint := m.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("seamless: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seamless: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seamless: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("seamless: read response body: %w", err)
	}

	var ir inferenceResponse
	if err := json.Unmarshal(data, &ir); err != nil {
		return nil, fmt.Errorf("seamless: parse JSON response: %w", err)
	}

	return &asr.Result{
		Text: ir.Text,
		Distribution: asr.TokenDistribution{
			Steps:     ir.TokenProbs,
			VocabSize: ir.VocabSize,
		},
	}, nil
}
