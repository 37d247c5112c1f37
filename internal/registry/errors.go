package registry

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceOffline  = errors.New("device offline")
)

// InvalidCapabilityError reports a malformed capability declaration at
// registration time.
type InvalidCapabilityError struct {
	Name   string
	Reason string
}

func (e *InvalidCapabilityError) Error() string {
	return fmt.Sprintf("invalid capability %q: %s", e.Name, e.Reason)
}

// InvalidCommandError reports a command rejected by capability validation.
// The command is rejected as a whole; no property is applied.
type InvalidCommandError struct {
	DeviceID string
	Property string
	Reason   string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command for device %s: property %q: %s", e.DeviceID, e.Property, e.Reason)
}
