// Package errors provides custom error types for the flow harness.
//
// Each error type includes a constructor, Error() method, and a type-checking
// helper using errors.As for proper error unwrapping.
//
// # Error Types Overview
//
//	┌──────────────────────────┬─────────────────────────────────────────────┐
//	│ Error Type               │ Description                                 │
//	├──────────────────────────┼─────────────────────────────────────────────┤
//	│ ComponentNotFoundError   │ Flow lookup by name failed                  │
//	│ ContainerNotFoundError   │ No container registered under the name      │
//	│ ImageNotFoundError       │ No image recipe for an engine name          │
//	│ ConditionTimeoutError    │ Polled condition never became true          │
//	│ ContainerExitedError     │ Container stopped while being waited on     │
//	│ InvalidStateError        │ Illegal container lifecycle transition      │
//	│ CommandError             │ Command inside a container failed           │
//	│ UnknownOptionError       │ Step referenced an unknown mode or option   │
//	└──────────────────────────┴─────────────────────────────────────────────┘
//
// # ComponentNotFoundError
//
// Returned by the flow model and its serializers when a processor, port,
// remote process group, controller service or parameter context cannot be
// resolved by name. Connections referencing unknown endpoints fail here at
// serialization time.
//
// Constructors:
//   - NewComponentNotFoundError(kind, name string)
//   - NewProcessorNotFoundError(name string)
//   - NewRemoteProcessGroupNotFoundError(name string)
//
// # ConditionTimeoutError and ContainerExitedError
//
// Returned by pkg/wait. A bail condition that fires while waiting, usually
// "the container exited", ends the wait early with ContainerExitedError
// instead of waiting for the whole timeout.
//
// Usage:
//
//	if errors.IsContainerExitedError(err) {
//	    logs, _ := c.Logs(ctx)
//	    zap.S().Errorw("container exited early", "logs", logs)
//	}
//
// # CommandError
//
// Returned when a command executed in a container returns a non-zero exit
// code. The combined output is kept so step failures can show it.
package errors
