package flow

import (
	"encoding/json"
	"fmt"
)

// MinifiJSONSerializer writes the agent flow in its JSON form.
type MinifiJSONSerializer struct{}

type jsonEncodingVersion struct {
	MajorVersion int `json:"majorVersion"`
	MinorVersion int `json:"minorVersion"`
}

type minifiJSONFlow struct {
	EncodingVersion   jsonEncodingVersion    `json:"encodingVersion"`
	ParameterContexts []jsonParameterContext `json:"parameterContexts"`
	RootGroup         minifiJSONGroup        `json:"rootGroup"`
}

type minifiJSONGroup struct {
	Name                 string                 `json:"name"`
	ParameterContextName string                 `json:"parameterContextName,omitempty"`
	Processors           []minifiJSONProcessor  `json:"processors"`
	Funnels              []jsonComponent        `json:"funnels"`
	Connections          []minifiJSONConnection `json:"connections"`
	RemoteProcessGroups  []minifiJSONRPG        `json:"remoteProcessGroups"`
	ControllerServices   []minifiJSONService    `json:"controllerServices"`
	InputPorts           []jsonComponent        `json:"inputPorts"`
	OutputPorts          []jsonComponent        `json:"outputPorts"`
}

type jsonComponent struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

type minifiJSONProcessor struct {
	Identifier                       string            `json:"identifier"`
	Name                             string            `json:"name"`
	Type                             string            `json:"type"`
	SchedulingStrategy               string            `json:"schedulingStrategy"`
	SchedulingPeriod                 string            `json:"schedulingPeriod"`
	ConcurrentlySchedulableTaskCount int               `json:"concurrentlySchedulableTaskCount"`
	AutoTerminatedRelationships      []string          `json:"autoTerminatedRelationships"`
	Properties                       map[string]string `json:"properties"`
}

type minifiJSONService struct {
	Identifier string            `json:"identifier"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

type jsonEndpointRef struct {
	ID string `json:"id"`
}

type minifiJSONConnection struct {
	Identifier            string          `json:"identifier"`
	Name                  string          `json:"name"`
	Source                jsonEndpointRef `json:"source"`
	Destination           jsonEndpointRef `json:"destination"`
	SelectedRelationships []string        `json:"selectedRelationships"`
	DropEmpty             bool            `json:"dropEmpty,omitempty"`
}

type minifiJSONRPG struct {
	Identifier            string                 `json:"identifier"`
	Name                  string                 `json:"name"`
	TargetURIs            string                 `json:"targetUris"`
	TransportProtocol     string                 `json:"transportProtocol"`
	CommunicationsTimeout string                 `json:"communicationsTimeout"`
	YieldDuration         string                 `json:"yieldDuration"`
	InputPorts            []minifiJSONRemotePort `json:"inputPorts"`
	OutputPorts           []minifiJSONRemotePort `json:"outputPorts"`
}

type minifiJSONRemotePort struct {
	Identifier                       string            `json:"identifier"`
	Name                             string            `json:"name"`
	UseCompression                   bool              `json:"useCompression"`
	ConcurrentlySchedulableTaskCount int               `json:"concurrentlySchedulableTaskCount"`
	Properties                       map[string]string `json:"properties"`
}

type jsonParameterContext struct {
	Identifier string          `json:"identifier"`
	Name       string          `json:"name"`
	Parameters []jsonParameter `json:"parameters"`
}

type jsonParameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Sensitive   bool   `json:"sensitive"`
	Value       string `json:"value"`
}

func (MinifiJSONSerializer) Serialize(d *Definition) ([]byte, error) {
	connections, err := d.resolveConnections()
	if err != nil {
		return nil, err
	}

	doc := minifiJSONFlow{
		EncodingVersion:   jsonEncodingVersion{MajorVersion: 2, MinorVersion: 0},
		ParameterContexts: jsonParameterContexts(d.ParameterContexts),
		RootGroup: minifiJSONGroup{
			Name:                 d.Name,
			ParameterContextName: d.ParameterContextName,
			Processors:           []minifiJSONProcessor{},
			Funnels:              []jsonComponent{},
			Connections:          []minifiJSONConnection{},
			RemoteProcessGroups:  []minifiJSONRPG{},
			ControllerServices:   []minifiJSONService{},
			InputPorts:           []jsonComponent{},
			OutputPorts:          []jsonComponent{},
		},
	}
	root := &doc.RootGroup

	for _, p := range d.Processors {
		root.Processors = append(root.Processors, minifiJSONProcessor{
			Identifier:                       p.ID,
			Name:                             p.Name,
			Type:                             p.MinifiClass(),
			SchedulingStrategy:               p.SchedulingStrategy,
			SchedulingPeriod:                 p.SchedulingPeriod,
			ConcurrentlySchedulableTaskCount: p.concurrentTasks(),
			AutoTerminatedRelationships:      orEmpty(p.AutoTerminatedRelationships),
			Properties:                       nonEmptyKeys(p.Properties),
		})
	}

	for _, f := range d.Funnels {
		root.Funnels = append(root.Funnels, jsonComponent{Identifier: f.ID, Name: f.Name})
	}

	for _, c := range connections {
		rels := []string{c.SourceRelationship}
		if c.Source.Type != endpointProcessor {
			rels = []string{}
		}
		root.Connections = append(root.Connections, minifiJSONConnection{
			Identifier:            c.ID,
			Name:                  c.Name(),
			Source:                jsonEndpointRef{ID: c.Source.ID},
			Destination:           jsonEndpointRef{ID: c.Destination.ID},
			SelectedRelationships: rels,
			DropEmpty:             c.DropEmptyFlowFiles,
		})
	}

	for _, rpg := range d.RemoteProcessGroups {
		root.RemoteProcessGroups = append(root.RemoteProcessGroups, minifiJSONRPG{
			Identifier:            rpg.ID,
			Name:                  rpg.Name,
			TargetURIs:            rpg.Address,
			TransportProtocol:     rpg.Protocol,
			CommunicationsTimeout: "30 sec",
			YieldDuration:         "3 sec",
			InputPorts:            jsonRemotePorts(rpg.InputPorts),
			OutputPorts:           jsonRemotePorts(rpg.OutputPorts),
		})
	}

	for _, cs := range d.ControllerServices {
		root.ControllerServices = append(root.ControllerServices, minifiJSONService{
			Identifier: cs.ID,
			Name:       cs.Name,
			Type:       cs.ClassName,
			Properties: nonEmptyKeys(cs.Properties),
		})
	}

	for _, p := range d.InputPorts {
		root.InputPorts = append(root.InputPorts, jsonComponent{Identifier: p.ID, Name: p.Name})
	}
	for _, p := range d.OutputPorts {
		root.OutputPorts = append(root.OutputPorts, jsonComponent{Identifier: p.ID, Name: p.Name})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow json: %w", err)
	}
	return data, nil
}

func jsonRemotePorts(ports []*RemotePort) []minifiJSONRemotePort {
	out := make([]minifiJSONRemotePort, 0, len(ports))
	for _, p := range ports {
		out = append(out, minifiJSONRemotePort{
			Identifier:                       p.ID,
			Name:                             p.Name,
			UseCompression:                   p.UseCompression,
			ConcurrentlySchedulableTaskCount: 1,
			Properties:                       nonEmptyKeys(p.Properties),
		})
	}
	return out
}

func jsonParameterContexts(contexts []*ParameterContext) []jsonParameterContext {
	out := make([]jsonParameterContext, 0, len(contexts))
	for _, pc := range contexts {
		params := make([]jsonParameter, 0, len(pc.Parameters))
		for _, p := range pc.Parameters {
			params = append(params, jsonParameter(p))
		}
		out = append(out, jsonParameterContext{Identifier: pc.ID, Name: pc.Name, Parameters: params})
	}
	return out
}
