package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Chain errors.
var (
	ErrLayerName      = errors.New("middleware: layer needs a name")
	ErrDuplicateLayer = errors.New("middleware: layer name already used")
)

// Next continues the chain with r.
type Next func(r *http.Request) error

// Layer processes a request before it is dispatched.
type Layer interface {
	Handle(w http.ResponseWriter, r *http.Request, next Next) error
}

// LayerFunc adapts a function to a Layer.
type LayerFunc func(w http.ResponseWriter, r *http.Request, next Next) error

// Handle implements Layer.
func (f LayerFunc) Handle(w http.ResponseWriter, r *http.Request, next Next) error {
	return f(w, r, next)
}

type entry struct {
	name  string
	layer Layer
}

// Chain is an ordered list of named layers. Layers run in the order they
// were added.
type Chain struct {
	mu     sync.RWMutex
	layers []entry
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Use appends l under name.
func (c *Chain) Use(name string, l Layer) error {
	if name == "" {
		return ErrLayerName
	}
	if l == nil {
		return fmt.Errorf("middleware: layer %q is nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.layers {
		if e.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateLayer, name)
		}
	}
	c.layers = append(c.layers, entry{name: name, layer: l})
	return nil
}

// Names returns the layer names in execution order.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.layers))
	for i, e := range c.layers {
		names[i] = e.name
	}
	return names
}

// Len returns the number of layers.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layers)
}

// Run passes r through every layer and then calls final.
//
// A layer can short-circuit by returning nil without calling next. In that
// case ranFinal is false and err is nil.
func (c *Chain) Run(w http.ResponseWriter, r *http.Request, final Next) (ranFinal bool, err error) {
	if final == nil {
		return false, nil
	}

	c.mu.RLock()
	layers := c.layers
	c.mu.RUnlock()

	ran := false
	index := 0
	var next Next
	next = func(r *http.Request) error {
		if index >= len(layers) {
			ran = true
			return final(r)
		}
		l := layers[index].layer
		index++
		return l.Handle(w, r, next)
	}

	err = next(r)
	return ran, err
}
