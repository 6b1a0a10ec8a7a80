package pipe

import (
	"net/http"
	"sync"
)

// Response tracks what was sent to the client so a page can be terminated
// exactly once. It passes writes through to the wrapped writer.
type Response struct {
	w http.ResponseWriter

	mu          sync.Mutex
	status      int
	wroteHeader bool
	written     int64
	finished    bool
}

// NewResponse wraps w. Wrapping a *Response returns it unchanged.
func NewResponse(w http.ResponseWriter) *Response {
	if r, ok := w.(*Response); ok {
		return r
	}
	return &Response{w: w}
}

// Header implements http.ResponseWriter.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// WriteHeader implements http.ResponseWriter. Only the first call counts.
func (r *Response) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeHeaderLocked(code)
}

func (r *Response) writeHeaderLocked(code int) {
	if r.wroteHeader || r.finished {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.w.WriteHeader(code)
}

// Write implements http.ResponseWriter.
func (r *Response) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return 0, ErrResponseFinished
	}
	r.writeHeaderLocked(http.StatusOK)
	n, err := r.w.Write(p)
	r.written += int64(n)
	return n, err
}

// Flush implements http.Flusher.
func (r *Response) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.writeHeaderLocked(http.StatusOK)
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying writer for http.ResponseController.
func (r *Response) Unwrap() http.ResponseWriter {
	return r.w
}

// Finish marks the response done. It reports whether this call finished it.
func (r *Response) Finish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return false
	}
	r.writeHeaderLocked(http.StatusOK)
	r.finished = true
	return true
}

// Finished reports whether the response is done.
func (r *Response) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Committed reports whether the status line was sent.
func (r *Response) Committed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wroteHeader
}

// Status returns the status sent, or 0.
func (r *Response) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Written returns the number of body bytes written.
func (r *Response) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
