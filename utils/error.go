package utils

import "errors"

var (
	ErrorRunLockNotObtained = errors.New("another reconciliation run holds the lock")
	ErrorConfirmRequired    = errors.New("write mode requires explicit confirmation")
)
