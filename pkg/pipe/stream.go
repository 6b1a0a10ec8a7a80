package pipe

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// EndResult is the outcome of Stream.End.
type EndResult int

const (
	// EndClosed means the final flush happened and the response is done.
	EndClosed EndResult = iota

	// EndPending means not every expected child was written yet. Nothing
	// was written.
	EndPending

	// EndFailed means the stream ended with an error and the error path ran.
	EndFailed

	// EndAlreadyClosed means the stream or the response was already done.
	EndAlreadyClosed
)

func (r EndResult) String() string {
	switch r {
	case EndClosed:
		return "closed"
	case EndPending:
		return "pending"
	case EndFailed:
		return "failed"
	case EndAlreadyClosed:
		return "already_closed"
	default:
		return "unknown"
	}
}

// Fragment is a unit of output queued on a stream.
type Fragment struct {
	// Name of the pagelet that produced the markup.
	Name string

	// Markup is written as-is.
	Markup string

	// Children is the number of expected children this fragment completes:
	// 0 for the shell, 1 for a child, all of them for a merged render.
	Children int
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithCloseFrame sets the markup written by the final flush.
func WithCloseFrame(frame string) StreamOption {
	return func(s *Stream) { s.closeFrame = frame }
}

// WithErrorHandler sets the function End(err) hands the error to.
func WithErrorHandler(fn func(error)) StreamOption {
	return func(s *Stream) { s.onError = fn }
}

// WithEndHook adds a function called once with the terminal error (nil on a
// clean close).
func WithEndHook(fn func(error)) StreamOption {
	return func(s *Stream) { s.onEnd = append(s.onEnd, fn) }
}

// WithStreamRecorder reports end results.
func WithStreamRecorder(rec Recorder) StreamOption {
	return func(s *Stream) { s.recorder = rec }
}

// WithStreamLogger sets the stream's logger.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(s *Stream) { s.logger = l }
}

// Stream multiplexes pagelet output into one response.
type Stream struct {
	res       *Response
	bootstrap *pagelet.Bootstrap

	mu           sync.Mutex
	queue        []string
	written      int
	flushEnabled bool
	ended        bool
	waiters      []func(error)

	closeFrame string
	onError    func(error)
	onEnd      []func(error)
	recorder   Recorder
	logger     *slog.Logger
}

// NewStream creates a stream for the page described by bs.
func NewStream(res *Response, bs *pagelet.Bootstrap, opts ...StreamOption) *Stream {
	s := &Stream{
		res:       res,
		bootstrap: bs,
		logger:    slog.Default().With("component", "pipe"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write queues a fragment and flushes if allowed. fn, when given, is called
// once the fragment's bytes were handed to the connection, or with the
// reason they never will be.
func (s *Stream) Write(f Fragment, fn func(error)) error {
	s.mu.Lock()
	if s.ended || s.res.Finished() {
		s.mu.Unlock()
		if fn != nil {
			fn(ErrStreamClosed)
		}
		return ErrStreamClosed
	}

	s.queue = append(s.queue, f.Markup)
	s.written += f.Children
	if fn != nil {
		s.waiters = append(s.waiters, fn)
	}
	waiters, err := s.flushLocked()
	s.mu.Unlock()

	notify(waiters, err)
	return err
}

// EnableFlush turns flushing on or off. Turning it on flushes the queue.
func (s *Stream) EnableFlush(on bool) error {
	s.mu.Lock()
	s.flushEnabled = on
	waiters, err := s.flushLocked()
	s.mu.Unlock()

	notify(waiters, err)
	return err
}

// Flush writes the queue when flushing is enabled and the queue is not empty.
func (s *Stream) Flush() error {
	s.mu.Lock()
	waiters, err := s.flushLocked()
	s.mu.Unlock()

	notify(waiters, err)
	return err
}

func (s *Stream) flushLocked() ([]func(error), error) {
	if !s.flushEnabled || len(s.queue) == 0 {
		return nil, nil
	}

	out := strings.Join(s.queue, "")
	s.queue = s.queue[:0]

	_, err := s.res.Write([]byte(out))
	if err == nil {
		s.res.Flush()
	}

	waiters := s.waiters
	s.waiters = nil
	return waiters, err
}

// End terminates the page. See EndResult for the outcomes. With a non-nil
// err the queue is discarded and the error handler takes over the response.
func (s *Stream) End(err error) EndResult {
	s.mu.Lock()
	if s.ended || s.res.Finished() {
		s.mu.Unlock()
		s.logger.Debug("stream already closed, ignoring end")
		return EndAlreadyClosed
	}

	if err != nil {
		s.markEndedLocked()
		s.queue = nil
		waiters := s.waiters
		s.waiters = nil
		s.mu.Unlock()

		notify(waiters, ErrStreamClosed)
		s.terminate(err)
		if s.onError != nil {
			s.onError(err)
		}
		s.record(EndFailed)
		return EndFailed
	}

	if s.bootstrap != nil && s.written < s.bootstrap.Expected {
		s.logger.Debug("not all pagelets have been written",
			"written", s.written, "expected", s.bootstrap.Expected)
		s.mu.Unlock()
		return EndPending
	}

	if s.closeFrame != "" {
		s.queue = append(s.queue, s.closeFrame)
	}
	s.flushEnabled = true
	waiters, werr := s.flushLocked()
	s.res.Finish()
	s.markEndedLocked()
	s.mu.Unlock()

	notify(waiters, werr)
	if werr != nil {
		s.logger.Warn("final flush failed", "error", werr)
	}
	s.terminate(nil)
	s.record(EndClosed)
	return EndClosed
}

func (s *Stream) markEndedLocked() {
	s.ended = true
	if s.bootstrap != nil {
		s.bootstrap.Ended = true
	}
}

func (s *Stream) terminate(err error) {
	for _, fn := range s.onEnd {
		fn(err)
	}
}

func (s *Stream) record(r EndResult) {
	if s.recorder != nil {
		s.recorder.Ended(r)
	}
}

// Ended reports whether End closed or failed the stream.
func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Written returns how many children were accounted for.
func (s *Stream) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func notify(waiters []func(error), err error) {
	for _, fn := range waiters {
		fn(err)
	}
}
