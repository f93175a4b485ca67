package flow

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const minifiConfigVersion = 3

// MinifiYAMLSerializer writes the agent config.yml (config version 3).
type MinifiYAMLSerializer struct{}

type yamlFlow struct {
	Version              int                    `yaml:"MiNiFi Config Version"`
	FlowController       yamlFlowController     `yaml:"Flow Controller"`
	ParameterContextName string                 `yaml:"Parameter Context Name,omitempty"`
	Processors           []yamlProcessor        `yaml:"Processors"`
	ControllerServices   []yamlService          `yaml:"Controller Services"`
	Funnels              []yamlFunnel           `yaml:"Funnels"`
	Connections          []yamlConnection       `yaml:"Connections"`
	RemoteProcessGroups  []yamlRPG              `yaml:"Remote Process Groups"`
	InputPorts           []yamlPort             `yaml:"Input Ports"`
	OutputPorts          []yamlPort             `yaml:"Output Ports"`
	ParameterContexts    []yamlParameterContext `yaml:"Parameter Contexts"`
}

type yamlFlowController struct {
	Name string `yaml:"name"`
}

type yamlProcessor struct {
	ID                          string            `yaml:"id"`
	Name                        string            `yaml:"name"`
	Class                       string            `yaml:"class"`
	SchedulingStrategy          string            `yaml:"scheduling strategy"`
	SchedulingPeriod            string            `yaml:"scheduling period"`
	MaxConcurrentTasks          int               `yaml:"max concurrent tasks"`
	AutoTerminatedRelationships []string          `yaml:"auto-terminated relationships list"`
	Properties                  map[string]string `yaml:"Properties"`
}

type yamlService struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	Properties map[string]string `yaml:"Properties"`
}

type yamlFunnel struct {
	ID string `yaml:"id"`
}

type yamlConnection struct {
	ID                      string   `yaml:"id"`
	Name                    string   `yaml:"name"`
	SourceID                string   `yaml:"source id"`
	SourceRelationshipNames []string `yaml:"source relationship names"`
	DestinationID           string   `yaml:"destination id"`
	DropEmpty               bool     `yaml:"drop empty,omitempty"`
}

type yamlRPG struct {
	ID                string           `yaml:"id"`
	Name              string           `yaml:"name"`
	Timeout           string           `yaml:"timeout"`
	TransportProtocol string           `yaml:"transport protocol"`
	URL               string           `yaml:"url"`
	YieldPeriod       string           `yaml:"yield period"`
	InputPorts        []yamlRemotePort `yaml:"Input Ports"`
	OutputPorts       []yamlRemotePort `yaml:"Output Ports"`
}

type yamlRemotePort struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	UseCompression     bool              `yaml:"use compression"`
	MaxConcurrentTasks int               `yaml:"max concurrent tasks"`
	Properties         map[string]string `yaml:"Properties"`
}

type yamlPort struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type yamlParameterContext struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Parameters []yamlParameter `yaml:"Parameters"`
}

type yamlParameter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Sensitive   bool   `yaml:"sensitive"`
	Value       string `yaml:"value"`
}

func (MinifiYAMLSerializer) Serialize(d *Definition) ([]byte, error) {
	connections, err := d.resolveConnections()
	if err != nil {
		return nil, err
	}

	doc := yamlFlow{
		Version:              minifiConfigVersion,
		FlowController:       yamlFlowController{Name: d.Name},
		ParameterContextName: d.ParameterContextName,
		Processors:           []yamlProcessor{},
		ControllerServices:   []yamlService{},
		Funnels:              []yamlFunnel{},
		Connections:          []yamlConnection{},
		RemoteProcessGroups:  []yamlRPG{},
		InputPorts:           []yamlPort{},
		OutputPorts:          []yamlPort{},
		ParameterContexts:    []yamlParameterContext{},
	}

	for _, p := range d.Processors {
		doc.Processors = append(doc.Processors, yamlProcessor{
			ID:                          p.ID,
			Name:                        p.Name,
			Class:                       p.MinifiClass(),
			SchedulingStrategy:          p.SchedulingStrategy,
			SchedulingPeriod:            p.SchedulingPeriod,
			MaxConcurrentTasks:          p.concurrentTasks(),
			AutoTerminatedRelationships: orEmpty(p.AutoTerminatedRelationships),
			Properties:                  nonEmptyKeys(p.Properties),
		})
	}

	for _, cs := range d.ControllerServices {
		doc.ControllerServices = append(doc.ControllerServices, yamlService{
			ID:         cs.ID,
			Name:       cs.Name,
			Type:       cs.ClassName,
			Properties: nonEmptyKeys(cs.Properties),
		})
	}

	for _, f := range d.Funnels {
		doc.Funnels = append(doc.Funnels, yamlFunnel{ID: f.ID})
	}

	for _, c := range connections {
		rels := []string{c.SourceRelationship}
		if c.Source.Type != endpointProcessor {
			rels = []string{}
		}
		doc.Connections = append(doc.Connections, yamlConnection{
			ID:                      c.ID,
			Name:                    c.Name(),
			SourceID:                c.Source.ID,
			SourceRelationshipNames: rels,
			DestinationID:           c.Destination.ID,
			DropEmpty:               c.DropEmptyFlowFiles,
		})
	}

	for _, rpg := range d.RemoteProcessGroups {
		doc.RemoteProcessGroups = append(doc.RemoteProcessGroups, yamlRPG{
			ID:                rpg.ID,
			Name:              rpg.Name,
			Timeout:           "30 sec",
			TransportProtocol: rpg.Protocol,
			URL:               rpg.Address,
			YieldPeriod:       "3 sec",
			InputPorts:        yamlRemotePorts(rpg.InputPorts),
			OutputPorts:       yamlRemotePorts(rpg.OutputPorts),
		})
	}

	for _, p := range d.InputPorts {
		doc.InputPorts = append(doc.InputPorts, yamlPort{ID: p.ID, Name: p.Name})
	}
	for _, p := range d.OutputPorts {
		doc.OutputPorts = append(doc.OutputPorts, yamlPort{ID: p.ID, Name: p.Name})
	}

	for _, pc := range d.ParameterContexts {
		params := make([]yamlParameter, 0, len(pc.Parameters))
		for _, p := range pc.Parameters {
			params = append(params, yamlParameter(p))
		}
		doc.ParameterContexts = append(doc.ParameterContexts, yamlParameterContext{ID: pc.ID, Name: pc.Name, Parameters: params})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode flow yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode flow yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func yamlRemotePorts(ports []*RemotePort) []yamlRemotePort {
	out := make([]yamlRemotePort, 0, len(ports))
	for _, p := range ports {
		out = append(out, yamlRemotePort{
			ID:                 p.ID,
			Name:               p.Name,
			UseCompression:     p.UseCompression,
			MaxConcurrentTasks: 1,
			Properties:         nonEmptyKeys(p.Properties),
		})
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
