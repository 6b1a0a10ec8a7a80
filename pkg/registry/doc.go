// Package registry discovers pagelet modules at startup.
//
// Discovery normalizes every declared module, runs the transform hooks, binds
// the status pagelets (404, 500 and the bootstrap shell) and catalogs assets.
// Any failure stops startup; the result is an immutable Snapshot the router
// reads without locking.
package registry
