// Package pyannote provides a diarize.Provider backed by a pyannote
// sidecar service.
//
// The pyannote speaker-diarization models run in a small Python HTTP
// service colocated with the pipeline; this package is its client. The
// service authenticates model downloads against the Hugging Face hub, so
// a Hugging Face access token is mandatory: without one the constructor
// returns [diarize.ErrTokenMissing] and the pipeline runs without
// diarization.
package pyannote

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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clinivox/clinivox/pkg/provider/diarize"
	"github.com/clinivox/clinivox/pkg/types"
)

// Compile-time assertion that Provider satisfies diarize.Provider.
var _ diarize.Provider = (*Provider)(nil)

// Provider implements diarize.Provider against a pyannote sidecar service
// exposing POST /diarize.
type Provider struct {
	serverURL  string
	token      string
	httpClient *http.Client
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client, mainly for tests. The default
// client allows 10 minutes per file.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New creates a Provider that connects to the pyannote sidecar at
// serverURL (e.g. "http://localhost:8090"). token is the Hugging Face
// access token forwarded to the sidecar as a bearer credential; when it
// is empty New returns [diarize.ErrTokenMissing].
func New(serverURL, token string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("pyannote: serverURL must not be empty")
	}
	if token == "" {
		return nil, diarize.ErrTokenMissing
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// diarizeResponse mirrors the sidecar's JSON response.
type diarizeResponse struct {
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Diarize uploads the WAV file to the sidecar and returns the speaker
// spans sorted by start time.
func (p *Provider) Diarize(ctx context.Context, req diarize.Request) ([]types.SpeakerSpan, error) {
	wav, err := os.ReadFile(req.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("pyannote: read %q: %w", req.WAVPath, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(req.WAVPath))
	if err != nil {
		return nil, fmt.Errorf("pyannote: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("pyannote: write wav data: %w", err)
	}
	if req.MinSpeakers > 0 {
		if err := mw.WriteField("min_speakers", strconv.Itoa(req.MinSpeakers)); err != nil {
			return nil, fmt.Errorf("pyannote: write min_speakers field: %w", err)
		}
	}
	if req.MaxSpeakers > 0 {
		if err := mw.WriteField("max_speakers", strconv.Itoa(req.MaxSpeakers)); err != nil {
			return nil, fmt.Errorf("pyannote: write max_speakers field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("pyannote: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/diarize"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("pyannote: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pyannote: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pyannote: read response body: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("pyannote: %w: server returned HTTP %d",
			diarize.ErrTokenMissing, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pyannote: server returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed diarizeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("pyannote: parse JSON response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("pyannote: server error: %s", parsed.Error)
	}

	spans := make([]types.SpeakerSpan, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		if s.End <= s.Start {
			continue
		}
		spans = append(spans, types.SpeakerSpan{
			Start:   s.Start,
			End:     s.End,
			Speaker: s.Speaker,
		})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans, nil
}
