package models

import "fmt"

// ContainerState is the lifecycle state of a scenario container.
type ContainerState string

const (
	// ContainerStateCreated - declared by a step, nothing exists on the engine yet
	ContainerStateCreated ContainerState = "created"
	// ContainerStateDeployed - created on the engine with its files injected
	ContainerStateDeployed ContainerState = "deployed"
	// ContainerStateRunning - started
	ContainerStateRunning ContainerState = "running"
	// ContainerStateStopped - stopped by the harness
	ContainerStateStopped ContainerState = "stopped"
	// ContainerStateExited - the process ended on its own
	ContainerStateExited ContainerState = "exited"
)

var containerTransitions = map[ContainerState][]ContainerState{
	ContainerStateCreated:  {ContainerStateDeployed},
	ContainerStateDeployed: {ContainerStateRunning, ContainerStateStopped},
	ContainerStateRunning:  {ContainerStateStopped, ContainerStateExited},
	ContainerStateStopped:  {ContainerStateRunning},
	ContainerStateExited:   {ContainerStateRunning, ContainerStateStopped},
}

// CanTransition reports whether the state may move to next.
func (s ContainerState) CanTransition(next ContainerState) bool {
	for _, allowed := range containerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseContainerState(s string) (ContainerState, error) {
	switch ContainerState(s) {
	case ContainerStateCreated, ContainerStateDeployed, ContainerStateRunning, ContainerStateStopped, ContainerStateExited:
		return ContainerState(s), nil
	default:
		return "", fmt.Errorf("invalid container state: %s", s)
	}
}

// ContainerStatus is what an engine reports about a container.
type ContainerStatus struct {
	Running  bool
	Exited   bool
	ExitCode int
}
