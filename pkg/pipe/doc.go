// Package pipe streams a routed page and its children over one response.
//
// The Controller takes an admitted instance from the router, builds the
// per-request bootstrap state, renders the children concurrently and feeds
// their output to a Stream. The Stream is the multiplexer: it queues
// fragments, writes them when flushing is enabled, and closes the response
// exactly once, after every expected child was written.
//
// Modes decide the write order:
//
//	render, sync  children are injected into the parent markup, one write
//	async         shell first, then children as they complete
//	pipeline      shell first, then children in declaration order
//
// Every failure funnels into Stream.End(err), which re-dispatches the
// request to the 500 pagelet.
package pipe
