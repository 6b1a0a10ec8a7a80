package pipe

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed is returned when writing to a stream whose response
	// already finished.
	ErrStreamClosed = errors.New("pipe: response was closed, unable to write pagelet")

	// ErrResponseFinished is returned by Response.Write after Finish.
	ErrResponseFinished = errors.New("pipe: response already finished")

	// ErrNoViews is returned when a pagelet needs its view rendered but the
	// controller has no view set.
	ErrNoViews = errors.New("pipe: no view engine configured")
)

// RenderError records which pagelet failed to render.
type RenderError struct {
	Pagelet string
	Err     error
}

func (e *RenderError) Error() string {
	return "pipe: render " + e.Pagelet + ": " + e.Err.Error()
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PanicError is a panic raised while rendering a pagelet. It takes the same
// error path as a returned error.
type PanicError struct {
	Pagelet string
	Value   any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pipe: pagelet %s panicked: %v", e.Pagelet, e.Value)
}
