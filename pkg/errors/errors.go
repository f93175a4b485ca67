package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ComponentNotFoundError indicates a flow component lookup by name failed.
type ComponentNotFoundError struct {
	Kind string
	Name string
}

func NewComponentNotFoundError(kind, name string) *ComponentNotFoundError {
	return &ComponentNotFoundError{Kind: kind, Name: name}
}

func NewProcessorNotFoundError(name string) *ComponentNotFoundError {
	return NewComponentNotFoundError("processor", name)
}

func NewRemoteProcessGroupNotFoundError(name string) *ComponentNotFoundError {
	return NewComponentNotFoundError("remote process group", name)
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IsComponentNotFoundError checks if the error is a ComponentNotFoundError.
func IsComponentNotFoundError(err error) bool {
	var e *ComponentNotFoundError
	return errors.As(err, &e)
}

// ContainerNotFoundError indicates the scenario has no container registered under the name.
type ContainerNotFoundError struct {
	Name string
}

func NewContainerNotFoundError(name string) *ContainerNotFoundError {
	return &ContainerNotFoundError{Name: name}
}

func (e *ContainerNotFoundError) Error() string {
	return fmt.Sprintf("container %q not found", e.Name)
}

func IsContainerNotFoundError(err error) bool {
	var e *ContainerNotFoundError
	return errors.As(err, &e)
}

// ImageNotFoundError indicates there is no recipe for the requested engine.
type ImageNotFoundError struct {
	Engine string
}

func NewImageNotFoundError(engine string) *ImageNotFoundError {
	return &ImageNotFoundError{Engine: engine}
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("no image recipe for engine %q", e.Engine)
}

func IsImageNotFoundError(err error) bool {
	var e *ImageNotFoundError
	return errors.As(err, &e)
}

// ConditionTimeoutError indicates a polled condition never became true.
type ConditionTimeoutError struct {
	Condition string
	Timeout   time.Duration
}

func NewConditionTimeoutError(condition string, timeout time.Duration) *ConditionTimeoutError {
	return &ConditionTimeoutError{Condition: condition, Timeout: timeout}
}

func (e *ConditionTimeoutError) Error() string {
	if e.Condition == "" {
		return fmt.Sprintf("condition not met within %s", e.Timeout)
	}
	return fmt.Sprintf("%s: condition not met within %s", e.Condition, e.Timeout)
}

func IsConditionTimeoutError(err error) bool {
	var e *ConditionTimeoutError
	return errors.As(err, &e)
}

// ContainerExitedError indicates a container stopped while a condition was awaited.
type ContainerExitedError struct {
	Name     string
	ExitCode int
}

func NewContainerExitedError(name string, exitCode int) *ContainerExitedError {
	return &ContainerExitedError{Name: name, ExitCode: exitCode}
}

func (e *ContainerExitedError) Error() string {
	return fmt.Sprintf("container %q exited with code %d", e.Name, e.ExitCode)
}

func IsContainerExitedError(err error) bool {
	var e *ContainerExitedError
	return errors.As(err, &e)
}

// InvalidStateError indicates a lifecycle transition that is not allowed.
type InvalidStateError struct {
	From string
	To   string
}

func NewInvalidStateError(from, to string) *InvalidStateError {
	return &InvalidStateError{From: from, To: to}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func IsInvalidStateError(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

// CommandError holds the result of a command that failed inside a container.
type CommandError struct {
	Cmd      []string
	ExitCode int
	Output   string
}

func NewCommandError(cmd []string, exitCode int, output string) *CommandError {
	return &CommandError{Cmd: cmd, ExitCode: exitCode, Output: output}
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d: %s", strings.Join(e.Cmd, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

func IsCommandError(err error) bool {
	var e *CommandError
	return errors.As(err, &e)
}

// UnknownOptionError indicates a step referenced a mode or option the harness does not know.
type UnknownOptionError struct {
	Kind  string
	Value string
}

func NewUnknownOptionError(kind, value string) *UnknownOptionError {
	return &UnknownOptionError{Kind: kind, Value: value}
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown %s: %q", e.Kind, e.Value)
}

func IsUnknownOptionError(err error) bool {
	var e *UnknownOptionError
	return errors.As(err, &e)
}

// RunNotFoundError indicates the run journal has no run with the id.
type RunNotFoundError struct {
	ID string
}

func NewRunNotFoundError(id string) *RunNotFoundError {
	return &RunNotFoundError{ID: id}
}

func (e *RunNotFoundError) Error() string {
	if e.ID == "" {
		return "no run recorded"
	}
	return fmt.Sprintf("run %s not found", e.ID)
}

func IsRunNotFoundError(err error) bool {
	var e *RunNotFoundError
	return errors.As(err, &e)
}
