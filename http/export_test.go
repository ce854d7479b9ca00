package http

// ParseContentRange exposes parseContentRange to external tests.
var ParseContentRange = parseContentRange
