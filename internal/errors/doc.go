// Package errors provides coded, actionable startup errors for bigpipe.
//
// Everything that can stop a server from starting (plugin registration,
// pagelet discovery, configuration loading, asset cataloging) is reported
// through an *Error carrying a stable code:
//
//	err := errors.New("B110").
//	    WithDetail(`pagelet "news" declares an invalid path "/news/:"`).
//	    WithSuggestion("Give every :param segment a name")
//
// Codes are grouped by category:
//
//	B100-B119  discovery (pagelet normalization, status pagelets)
//	B120-B139  plugins
//	B140-B159  configuration
//	B160-B179  assets
//
// Request-time failures are not reported through this package; they flow
// through the stream's single termination point and end as a 500 page.
package errors
