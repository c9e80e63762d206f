package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clinivox/clinivox/pkg/provider/asr"
	"github.com/clinivox/clinivox/pkg/types"
)

// Compile-time assertion that ServerProvider satisfies asr.Provider.
var _ asr.Provider = (*ServerProvider)(nil)

// ServerProvider implements asr.Provider against a running whisper-server
// binary, which exposes batch inference at POST /inference. The WAV file
// is uploaded as multipart/form-data and the verbose JSON response is
// mapped onto the pipeline segment types.
type ServerProvider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// ServerOption is a functional option for configuring a ServerProvider.
type ServerOption func(*ServerProvider)

// WithServerLanguage sets the default language hint used when a request
// does not carry one. Defaults to "auto" (detect).
func WithServerLanguage(lang string) ServerOption {
	return func(p *ServerProvider) { p.language = lang }
}

// WithServerHTTPClient replaces the HTTP client, mainly for tests. The
// default client allows 10 minutes per file; large-model inference on long
// consultations is slow.
func WithServerHTTPClient(c *http.Client) ServerOption {
	return func(p *ServerProvider) { p.httpClient = c }
}

// NewServer creates a ServerProvider that connects to the whisper-server
// at serverURL (e.g. "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...ServerOption) (*ServerProvider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &ServerProvider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   asr.LanguageAuto,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse mirrors the whisper-server verbose JSON response.
type inferenceResponse struct {
	Language string `json:"language"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogProb float64 `json:"avg_logprob"`
		Words      []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Transcribe uploads the WAV file to the /inference endpoint and maps the
// response onto the pipeline segment types.
func (p *ServerProvider) Transcribe(ctx context.Context, req asr.Request) (*types.Transcription, error) {
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	wav, err := os.ReadFile(req.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: read %q: %w", req.WAVPath, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(req.WAVPath))
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        lang,
		"response_format": "verbose_json",
		"word_timestamps": "true",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("whisper: server error: %s", parsed.Error)
	}

	segments := make([]types.Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		seg := types.Segment{
			Start:      s.Start,
			End:        s.End,
			Text:       strings.TrimSpace(s.Text),
			AvgLogProb: s.AvgLogProb,
		}
		if seg.Text == "" {
			continue
		}
		for _, w := range s.Words {
			seg.Words = append(seg.Words, types.Word{
				Text:      strings.TrimSpace(w.Word),
				Start:     w.Start,
				End:       w.End,
				HasTiming: w.End > 0 || w.Start > 0,
			})
		}
		segments = append(segments, seg)
	}

	detected := parsed.Language
	if detected == "" {
		if lang != asr.LanguageAuto {
			detected = lang
		} else {
			detected = "en"
		}
	}
	return &types.Transcription{
		Segments: normalizeSegments(segments),
		Language: detected,
	}, nil
}
