package engine

import (
	"fmt"

	"github.com/cricklet/chessuci/internal/uci"
)

// ProtocolViolation is reported when a command isn't valid in the current
// state. The command is dropped.
type ProtocolViolation struct {
	Command uci.Command
	State   State
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("%q is not allowed while %v", e.Command.String(), e.State)
}

// CapabilityFailure wraps an error or panic from the searcher, evaluator or
// time manager.
type CapabilityFailure struct {
	Capability string
	Err        error
}

func (e *CapabilityFailure) Error() string {
	return fmt.Sprintf("%v failed: %v", e.Capability, e.Err)
}

func (e *CapabilityFailure) Unwrap() error {
	return e.Err
}

func recovered(capability string, r any) *CapabilityFailure {
	if err, ok := r.(error); ok {
		return &CapabilityFailure{Capability: capability, Err: fmt.Errorf("panic: %w", err)}
	}
	return &CapabilityFailure{Capability: capability, Err: fmt.Errorf("panic: %v", r)}
}
