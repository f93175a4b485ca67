package flow

import "github.com/google/uuid"

const (
	ProtocolRaw  = "RAW"
	ProtocolHTTP = "HTTP"
)

// RemotePort is an input or output port of a remote NiFi instance.
type RemotePort struct {
	ID             string
	Name           string
	UseCompression bool
	Properties     map[string]string
}

func newRemotePort(name string, useCompression bool) *RemotePort {
	return &RemotePort{
		ID:             uuid.NewString(),
		Name:           name,
		UseCompression: useCompression,
		Properties:     make(map[string]string),
	}
}

// RemoteProcessGroup is a site-to-site link to a remote NiFi instance.
type RemoteProcessGroup struct {
	ID          string
	Name        string
	Address     string
	Protocol    string
	InputPorts  []*RemotePort
	OutputPorts []*RemotePort
	Properties  map[string]string
}

func NewRemoteProcessGroup(name, address, protocol string) *RemoteProcessGroup {
	if protocol == "" {
		protocol = ProtocolRaw
	}
	return &RemoteProcessGroup{
		ID:         uuid.NewString(),
		Name:       name,
		Address:    address,
		Protocol:   protocol,
		Properties: make(map[string]string),
	}
}

func (r *RemoteProcessGroup) AddInputPort(name string, useCompression bool) *RemotePort {
	p := newRemotePort(name, useCompression)
	r.InputPorts = append(r.InputPorts, p)
	return p
}

func (r *RemoteProcessGroup) AddOutputPort(name string, useCompression bool) *RemotePort {
	p := newRemotePort(name, useCompression)
	r.OutputPorts = append(r.OutputPorts, p)
	return p
}

func findPort(ports []*RemotePort, name string) *RemotePort {
	for _, p := range ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}
