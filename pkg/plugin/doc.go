// Package plugin registers extensions to a pipe.
//
// A plugin has a name and at least one of two hooks: Server, which runs once
// at registration and may add middleware layers or lifecycle hooks, and
// Client, a script every page loads. Plugin options are merged into the
// pipe's global Options before the server hook runs.
package plugin
