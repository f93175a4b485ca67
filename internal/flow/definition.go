package flow

import (
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const (
	DefaultMinifiFlowName = "MiNiFi Flow"
	DefaultNifiFlowName   = "NiFi Flow"
)

// Definition is the in-memory flow graph of one agent or NiFi instance.
// Connections reference their endpoints by name and are resolved at serialization time.
type Definition struct {
	Name                 string
	Processors           []*Processor
	ControllerServices   []*ControllerService
	Funnels              []*Funnel
	Connections          []*Connection
	ParameterContexts    []*ParameterContext
	RemoteProcessGroups  []*RemoteProcessGroup
	InputPorts           []*InputPort
	OutputPorts          []*OutputPort
	ParameterContextName string
}

func NewDefinition(name string) *Definition {
	if name == "" {
		name = DefaultMinifiFlowName
	}
	return &Definition{Name: name}
}

func (d *Definition) AddProcessor(p *Processor) *Processor {
	d.Processors = append(d.Processors, p)
	return p
}

func (d *Definition) GetProcessor(name string) (*Processor, error) {
	for _, p := range d.Processors {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, srvErrors.NewProcessorNotFoundError(name)
}

func (d *Definition) AddControllerService(cs *ControllerService) *ControllerService {
	d.ControllerServices = append(d.ControllerServices, cs)
	return cs
}

func (d *Definition) GetControllerService(name string) (*ControllerService, error) {
	for _, cs := range d.ControllerServices {
		if cs.Name == name {
			return cs, nil
		}
	}
	return nil, srvErrors.NewComponentNotFoundError("controller service", name)
}

func (d *Definition) AddFunnel(f *Funnel) *Funnel {
	d.Funnels = append(d.Funnels, f)
	return f
}

func (d *Definition) AddConnection(c *Connection) *Connection {
	d.Connections = append(d.Connections, c)
	return c
}

// Connect is a shorthand for AddConnection(NewConnection(...)).
func (d *Definition) Connect(sourceName, relationship, targetName string) *Connection {
	return d.AddConnection(NewConnection(sourceName, relationship, targetName))
}

func (d *Definition) AddParameterContext(pc *ParameterContext) *ParameterContext {
	d.ParameterContexts = append(d.ParameterContexts, pc)
	return pc
}

func (d *Definition) GetParameterContext(name string) (*ParameterContext, error) {
	for _, pc := range d.ParameterContexts {
		if pc.Name == name {
			return pc, nil
		}
	}
	return nil, srvErrors.NewComponentNotFoundError("parameter context", name)
}

// BindParameterContext makes the named parameter context the one used by the root group.
func (d *Definition) BindParameterContext(name string) error {
	if _, err := d.GetParameterContext(name); err != nil {
		return err
	}
	d.ParameterContextName = name
	return nil
}

func (d *Definition) AddRemoteProcessGroup(address, name, protocol string) *RemoteProcessGroup {
	rpg := NewRemoteProcessGroup(name, address, protocol)
	d.RemoteProcessGroups = append(d.RemoteProcessGroups, rpg)
	return rpg
}

func (d *Definition) GetRemoteProcessGroup(name string) (*RemoteProcessGroup, error) {
	for _, rpg := range d.RemoteProcessGroups {
		if rpg.Name == name {
			return rpg, nil
		}
	}
	return nil, srvErrors.NewRemoteProcessGroupNotFoundError(name)
}

func (d *Definition) AddInputPortToRPG(rpgName, portName string, useCompression bool) error {
	rpg, err := d.GetRemoteProcessGroup(rpgName)
	if err != nil {
		return err
	}
	rpg.AddInputPort(portName, useCompression)
	return nil
}

func (d *Definition) AddOutputPortToRPG(rpgName, portName string, useCompression bool) error {
	rpg, err := d.GetRemoteProcessGroup(rpgName)
	if err != nil {
		return err
	}
	rpg.AddOutputPort(portName, useCompression)
	return nil
}

func (d *Definition) InputPortIDOfRPG(rpgName, portName string) (string, error) {
	rpg, err := d.GetRemoteProcessGroup(rpgName)
	if err != nil {
		return "", err
	}
	p := findPort(rpg.InputPorts, portName)
	if p == nil {
		return "", srvErrors.NewComponentNotFoundError("input port of "+rpgName, portName)
	}
	return p.ID, nil
}

func (d *Definition) OutputPortIDOfRPG(rpgName, portName string) (string, error) {
	rpg, err := d.GetRemoteProcessGroup(rpgName)
	if err != nil {
		return "", err
	}
	p := findPort(rpg.OutputPorts, portName)
	if p == nil {
		return "", srvErrors.NewComponentNotFoundError("output port of "+rpgName, portName)
	}
	return p.ID, nil
}

func (d *Definition) AddInputPort(id, name string) *InputPort {
	p := &InputPort{ID: id, Name: name}
	d.InputPorts = append(d.InputPorts, p)
	return p
}

func (d *Definition) AddOutputPort(id, name string) *OutputPort {
	p := &OutputPort{ID: id, Name: name}
	d.OutputPorts = append(d.OutputPorts, p)
	return p
}

// SetDropEmptyForDestination marks every connection into the named destination to drop empty flow files.
func (d *Definition) SetDropEmptyForDestination(name string) {
	for _, c := range d.Connections {
		if c.TargetName == name {
			c.DropEmptyFlowFiles = true
		}
	}
}

// endpoint is a resolved connection source or destination.
type endpoint struct {
	ID   string
	Name string
	Type string
}

const (
	endpointProcessor        = "PROCESSOR"
	endpointFunnel           = "FUNNEL"
	endpointInputPort        = "INPUT_PORT"
	endpointOutputPort       = "OUTPUT_PORT"
	endpointRemoteInputPort  = "REMOTE_INPUT_PORT"
	endpointRemoteOutputPort = "REMOTE_OUTPUT_PORT"
)

// resolve looks a name up in processors, funnels, local ports and remote ports, in that order.
func (d *Definition) resolve(name string) (endpoint, bool) {
	for _, p := range d.Processors {
		if p.Name == name {
			return endpoint{ID: p.ID, Name: p.Name, Type: endpointProcessor}, true
		}
	}
	for _, f := range d.Funnels {
		if f.Name == name {
			return endpoint{ID: f.ID, Name: f.Name, Type: endpointFunnel}, true
		}
	}
	for _, p := range d.InputPorts {
		if p.Name == name {
			return endpoint{ID: p.ID, Name: p.Name, Type: endpointInputPort}, true
		}
	}
	for _, p := range d.OutputPorts {
		if p.Name == name {
			return endpoint{ID: p.ID, Name: p.Name, Type: endpointOutputPort}, true
		}
	}
	for _, rpg := range d.RemoteProcessGroups {
		if p := findPort(rpg.InputPorts, name); p != nil {
			return endpoint{ID: p.ID, Name: p.Name, Type: endpointRemoteInputPort}, true
		}
		if p := findPort(rpg.OutputPorts, name); p != nil {
			return endpoint{ID: p.ID, Name: p.Name, Type: endpointRemoteOutputPort}, true
		}
	}
	return endpoint{}, false
}

type resolvedConnection struct {
	*Connection
	Source      endpoint
	Destination endpoint
}

func (d *Definition) resolveConnections() ([]resolvedConnection, error) {
	out := make([]resolvedConnection, 0, len(d.Connections))
	for _, c := range d.Connections {
		src, ok := d.resolve(c.SourceName)
		if !ok {
			return nil, srvErrors.NewComponentNotFoundError("connection source", c.SourceName)
		}
		dst, ok := d.resolve(c.TargetName)
		if !ok {
			return nil, srvErrors.NewComponentNotFoundError("connection destination", c.TargetName)
		}
		out = append(out, resolvedConnection{Connection: c, Source: src, Destination: dst})
	}
	return out, nil
}
