// Package config loads the bigpipe.json (or bigpipe.yaml) project file.
//
// The file configures the server surface around the pagelet engine:
//
//	{
//	  "address": ":8080",
//	  "cache": true,
//	  "views": {"dir": "views"},
//	  "static": {"dir": "dist", "prefix": "/dist/"},
//	  "realtime": {"enabled": true},
//	  "metrics": {"enabled": true, "path": "/metrics"},
//	  "options": {"ack": {"interval": 5}}
//	}
//
// Missing fields fall back to the values returned by New.
package config
