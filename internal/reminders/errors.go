package reminders

import "errors"

var (
	ErrValidation       = errors.New("reminders: validation failed")
	ErrPermissionDenied = errors.New("reminders: notification permission denied")
	ErrNotFound         = errors.New("reminders: reminder not found")
	ErrSchedulerCall    = errors.New("reminders: scheduler call failed")
	ErrPermissionFixed  = errors.New("reminders: scheduler permission cannot be changed at runtime")
)
