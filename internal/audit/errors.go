package audit

import "errors"

// ErrRecordNotFound is returned by Get for an unknown id
var ErrRecordNotFound = errors.New("change record not found")
