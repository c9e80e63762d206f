// Package server implements the long-running control loop: newline
// delimited JSON requests on standard input, one JSON response per line
// on standard output, logs on standard error.
//
// The loop starts before the workers finish loading; health probes
// answer immediately with ready=false until the background loader closes
// the registry's ready channel. Run commands are handled one at a time
// on the loop itself, so a client must await each response before
// submitting the next job.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"

	"github.com/clinivox/clinivox/internal/observe"
	"github.com/clinivox/clinivox/internal/pipeline"
	"github.com/clinivox/clinivox/internal/worker"
	"github.com/google/uuid"
)

// maxLineBytes bounds a single request line. Requests are small control
// messages; anything larger is a protocol violation.
const maxLineBytes = 1 << 20

// Runner executes one pipeline job. Satisfied by [pipeline.Executor].
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (*pipeline.Result, error)
}

var _ Runner = (*pipeline.Executor)(nil)

// Server owns the request/response loop.
type Server struct {
	workers *worker.Registry
	runner  Runner
	metrics *observe.Metrics

	in  io.Reader
	out io.Writer

	// writeMu serializes response lines. The loop itself is single
	// threaded today, but the writer contract is stronger than the loop's
	// current shape.
	writeMu sync.Mutex
}

// Option customizes a Server.
type Option func(*Server)

// WithIO overrides the request and response streams, primarily for tests.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server over stdin/stdout.
func New(workers *worker.Registry, runner Runner, opts ...Option) *Server {
	s := &Server{
		workers: workers,
		runner:  runner,
		metrics: observe.DefaultMetrics(),
		in:      os.Stdin,
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads requests until the input closes or ctx is cancelled.
// A closed input is a graceful shutdown and returns nil; cancellation
// returns the context error after any in-flight request has been
// answered.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	// The scanner blocks inside Read, so it runs on its own goroutine and
	// the loop below selects against cancellation. An interrupt while the
	// server is idle must not wait for the next input line. After
	// cancellation the reader goroutine may stay parked in Read until the
	// input closes; the process is exiting at that point.
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupt received, shutting down")
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("server: read request channel: %w", err)
				}
				slog.Info("request channel closed, shutting down")
				return nil
			}
			if len(line) == 0 {
				continue
			}
			s.handleLine(ctx, line)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		slog.Warn("malformed request line", "error", err)
		s.write(errorResponse{Status: "error", Error: "invalid request: " + err.Error()})
		return
	}

	switch req.Cmd {
	case CmdHealth:
		s.handleHealth(ctx)
	case CmdRun:
		_ = observe.InstrumentCommand(ctx, s.metrics, CmdRun, func(ctx context.Context) error {
			return s.handleRun(ctx, req)
		})
	default:
		s.write(errorResponse{Status: "error", Error: "Unknown command: " + req.Cmd})
	}
}

// handleHealth snapshots the worker registry. It never blocks on the
// loader; a probe during loading reports ready=false.
func (s *Server) handleHealth(_ context.Context) {
	st := s.workers.Status()
	errs := st.ModelErrors
	if errs == nil {
		errs = []string{}
	}
	s.write(healthResponse{
		Status:       "ok",
		Ready:        st.Ready,
		ModelsLoaded: st.ModelsLoaded,
		ModelErrors:  errs,
	})
}

// handleRun executes one job synchronously and writes the response. The
// returned error only feeds instrumentation; the client learns about
// failures through the response body.
func (s *Server) handleRun(ctx context.Context, req Request) (err error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	// A panic inside a stage must not kill the server; it fails the job.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			slog.Error("job panicked", "job_id", jobID, "panic", r)
			s.write(runResponse{
				JobID:  jobID,
				Status: "failed",
				Error:  fmt.Sprintf("panic: %v", r),
				Trace:  string(debug.Stack()),
			})
		}
	}()

	if req.AudioPath == "" && req.AudioS3Path == "" {
		s.write(runResponse{
			JobID:  jobID,
			Status: "failed",
			Error:  "run requires audio_path or audio_s3_path",
		})
		return fmt.Errorf("run without audio reference")
	}

	res, runErr := s.runner.Run(ctx, pipeline.Job{
		ID:              jobID,
		LocalPath:       req.AudioPath,
		RemoteRef:       req.AudioS3Path,
		Language:        req.Language,
		SkipTranslation: req.SkipTranslation,
		SkipClinical:    req.SkipClinical,
	})
	if runErr != nil {
		s.write(runResponse{
			JobID:  jobID,
			Status: "failed",
			Error:  runErr.Error(),
			Trace:  string(debug.Stack()),
		})
		return runErr
	}

	s.write(runResponse{JobID: jobID, Status: "done", Result: res})
	return nil
}

// write marshals one response and emits it as a single line. Writes are
// serialized; a response is never interleaved with another.
func (s *Server) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("response not serializable", "error", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		slog.Error("response write failed", "error", err)
	}
}
