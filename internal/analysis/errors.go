package analysis

import "errors"

// ErrAnalysisTimeout reports that the wall-clock budget expired and the
// engine produced no terminal record even after being told to stop.
// Nothing is cached for the request.
var ErrAnalysisTimeout = errors.New("analysis timed out without a terminal record")
