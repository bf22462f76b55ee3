package services

import "errors"

// ErrUnsupportedMode is returned for a calibration mode the service does not run
var ErrUnsupportedMode = errors.New("unsupported calibration mode")
