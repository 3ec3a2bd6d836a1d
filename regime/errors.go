package regime

import "errors"

// ErrInsufficientData means the bar history is shorter than the indicator
// windows. Classify recovers from it by degrading.
var ErrInsufficientData = errors.New("regime: insufficient data")
