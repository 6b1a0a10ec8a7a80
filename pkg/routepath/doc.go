// Package routepath normalizes request paths and matches them against
// pagelet path patterns.
//
// Patterns use the same segment syntax as the rest of bigpipe:
//
//	/                    root only
//	/news                literal
//	/news/:id            named parameter
//	/news/:id:int        typed parameter (int, uuid, string)
//	/files/*path         catch-all, must be the last segment
//	^/archive/(?P<year>\d{4})$   regular expression with named groups
//
// A Pattern is immutable once compiled and safe for concurrent use.
package routepath
