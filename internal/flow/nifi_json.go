package flow

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const (
	DefaultNifiVersion = "2.7.2"

	nifiRootGroupID        = "9802c873-3322-3b60-a71d-732d02bd60f8"
	nifiStandardProcessors = "org.apache.nifi.processors.standard."
)

// NifiJSONSerializer writes a NiFi 2.x flow.json.
type NifiJSONSerializer struct {
	Version string
}

type nifiFlow struct {
	EncodingVersion           jsonEncodingVersion `json:"encodingVersion"`
	MaxTimerDrivenThreadCount int                 `json:"maxTimerDrivenThreadCount"`
	MaxEventDrivenThreadCount int                 `json:"maxEventDrivenThreadCount"`
	Registries                []any               `json:"registries"`
	ParameterContexts         []any               `json:"parameterContexts"`
	ParameterProviders        []any               `json:"parameterProviders"`
	ControllerServices        []any               `json:"controllerServices"`
	ReportingTasks            []any               `json:"reportingTasks"`
	Templates                 []any               `json:"templates"`
	RootGroup                 nifiGroup           `json:"rootGroup"`
}

type nifiPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type nifiGroup struct {
	Identifier                           string           `json:"identifier"`
	InstanceIdentifier                   string           `json:"instanceIdentifier"`
	Name                                 string           `json:"name"`
	Comments                             string           `json:"comments"`
	Position                             nifiPosition     `json:"position"`
	ProcessGroups                        []any            `json:"processGroups"`
	RemoteProcessGroups                  []any            `json:"remoteProcessGroups"`
	Processors                           []nifiProcessor  `json:"processors"`
	InputPorts                           []nifiPort       `json:"inputPorts"`
	OutputPorts                          []nifiPort       `json:"outputPorts"`
	Connections                          []nifiConnection `json:"connections"`
	Labels                               []any            `json:"labels"`
	Funnels                              []any            `json:"funnels"`
	ControllerServices                   []any            `json:"controllerServices"`
	DefaultFlowFileExpiration            string           `json:"defaultFlowFileExpiration"`
	DefaultBackPressureObjectThreshold   int              `json:"defaultBackPressureObjectThreshold"`
	DefaultBackPressureDataSizeThreshold string           `json:"defaultBackPressureDataSizeThreshold"`
	ScheduledState                       string           `json:"scheduledState"`
	ExecutionEngine                      string           `json:"executionEngine"`
	MaxConcurrentTasks                   int              `json:"maxConcurrentTasks"`
	StatelessFlowTimeout                 string           `json:"statelessFlowTimeout"`
	FlowFileConcurrency                  string           `json:"flowFileConcurrency"`
	FlowFileOutboundPolicy               string           `json:"flowFileOutboundPolicy"`
	ComponentType                        string           `json:"componentType"`
}

type nifiBundle struct {
	Group    string `json:"group"`
	Artifact string `json:"artifact"`
	Version  string `json:"version"`
}

type nifiProcessor struct {
	Identifier                       string            `json:"identifier"`
	InstanceIdentifier               string            `json:"instanceIdentifier"`
	Name                             string            `json:"name"`
	Comments                         string            `json:"comments"`
	Position                         nifiPosition      `json:"position"`
	Type                             string            `json:"type"`
	Bundle                           nifiBundle        `json:"bundle"`
	Properties                       map[string]string `json:"properties"`
	PropertyDescriptors              map[string]any    `json:"propertyDescriptors"`
	Style                            map[string]any    `json:"style"`
	SchedulingPeriod                 string            `json:"schedulingPeriod"`
	SchedulingStrategy               string            `json:"schedulingStrategy"`
	ExecutionNode                    string            `json:"executionNode"`
	PenaltyDuration                  string            `json:"penaltyDuration"`
	YieldDuration                    string            `json:"yieldDuration"`
	BulletinLevel                    string            `json:"bulletinLevel"`
	RunDurationMillis                string            `json:"runDurationMillis"`
	ConcurrentlySchedulableTaskCount int               `json:"concurrentlySchedulableTaskCount"`
	AutoTerminatedRelationships      []string          `json:"autoTerminatedRelationships"`
	ScheduledState                   string            `json:"scheduledState"`
	RetryCount                       int               `json:"retryCount"`
	RetriedRelationships             []string          `json:"retriedRelationships"`
	BackoffMechanism                 string            `json:"backoffMechanism"`
	MaxBackoffPeriod                 string            `json:"maxBackoffPeriod"`
	ComponentType                    string            `json:"componentType"`
	GroupIdentifier                  string            `json:"groupIdentifier"`
}

type nifiEndpoint struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	GroupID            string `json:"groupId"`
	Name               string `json:"name"`
	Comments           string `json:"comments"`
	InstanceIdentifier string `json:"instanceIdentifier"`
}

type nifiConnection struct {
	Identifier                    string       `json:"identifier"`
	InstanceIdentifier            string       `json:"instanceIdentifier"`
	Name                          string       `json:"name"`
	Source                        nifiEndpoint `json:"source"`
	Destination                   nifiEndpoint `json:"destination"`
	LabelIndex                    int          `json:"labelIndex"`
	ZIndex                        int          `json:"zIndex"`
	SelectedRelationships         []string     `json:"selectedRelationships"`
	BackPressureObjectThreshold   int          `json:"backPressureObjectThreshold"`
	BackPressureDataSizeThreshold string       `json:"backPressureDataSizeThreshold"`
	FlowFileExpiration            string       `json:"flowFileExpiration"`
	Prioritizers                  []string     `json:"prioritizers"`
	Bends                         []any        `json:"bends"`
	LoadBalanceStrategy           string       `json:"loadBalanceStrategy"`
	PartitioningAttribute         string       `json:"partitioningAttribute"`
	LoadBalanceCompression        string       `json:"loadBalanceCompression"`
	ComponentType                 string       `json:"componentType"`
	GroupIdentifier               string       `json:"groupIdentifier"`
}

type nifiPort struct {
	Identifier                       string       `json:"identifier"`
	InstanceIdentifier               string       `json:"instanceIdentifier"`
	Name                             string       `json:"name"`
	Comments                         string       `json:"comments"`
	Position                         nifiPosition `json:"position"`
	Type                             string       `json:"type"`
	ConcurrentlySchedulableTaskCount int          `json:"concurrentlySchedulableTaskCount"`
	ScheduledState                   string       `json:"scheduledState"`
	AllowRemoteAccess                bool         `json:"allowRemoteAccess"`
	PortFunction                     string       `json:"portFunction"`
	ComponentType                    string       `json:"componentType"`
	GroupIdentifier                  string       `json:"groupIdentifier"`
}

func (s NifiJSONSerializer) Serialize(d *Definition) ([]byte, error) {
	version := s.Version
	if version == "" {
		version = DefaultNifiVersion
	}

	doc := nifiFlow{
		EncodingVersion:           jsonEncodingVersion{MajorVersion: 2, MinorVersion: 0},
		MaxTimerDrivenThreadCount: 10,
		MaxEventDrivenThreadCount: 1,
		Registries:                []any{},
		ParameterContexts:         []any{},
		ParameterProviders:        []any{},
		ControllerServices:        []any{},
		ReportingTasks:            []any{},
		Templates:                 []any{},
		RootGroup: nifiGroup{
			Identifier:                           nifiRootGroupID,
			InstanceIdentifier:                   uuid.NewString(),
			Name:                                 DefaultNifiFlowName,
			ProcessGroups:                        []any{},
			RemoteProcessGroups:                  []any{},
			Processors:                           []nifiProcessor{},
			InputPorts:                           []nifiPort{},
			OutputPorts:                          []nifiPort{},
			Connections:                          []nifiConnection{},
			Labels:                               []any{},
			Funnels:                              []any{},
			ControllerServices:                   []any{},
			DefaultFlowFileExpiration:            "0 sec",
			DefaultBackPressureObjectThreshold:   10000,
			DefaultBackPressureDataSizeThreshold: "1 GB",
			ScheduledState:                       "RUNNING",
			ExecutionEngine:                      "INHERITED",
			MaxConcurrentTasks:                   1,
			StatelessFlowTimeout:                 "1 min",
			FlowFileConcurrency:                  "UNBOUNDED",
			FlowFileOutboundPolicy:               "STREAM_WHEN_AVAILABLE",
			ComponentType:                        "PROCESS_GROUP",
		},
	}
	root := &doc.RootGroup

	for _, p := range d.Processors {
		period := p.SchedulingPeriod
		if p.SchedulingStrategy == SchedulingEventDriven {
			period = "0 sec"
		}
		root.Processors = append(root.Processors, nifiProcessor{
			Identifier:                       p.ID,
			InstanceIdentifier:               p.ID,
			Name:                             p.Name,
			Type:                             nifiStandardProcessors + p.ClassName,
			Bundle:                           nifiBundle{Group: "org.apache.nifi", Artifact: "nifi-standard-nar", Version: version},
			Properties:                       nonEmptyKeys(p.Properties),
			PropertyDescriptors:              map[string]any{},
			Style:                            map[string]any{},
			SchedulingPeriod:                 period,
			SchedulingStrategy:               SchedulingTimerDriven,
			ExecutionNode:                    "ALL",
			PenaltyDuration:                  "5 sec",
			YieldDuration:                    "1 sec",
			BulletinLevel:                    "WARN",
			RunDurationMillis:                "0",
			ConcurrentlySchedulableTaskCount: p.concurrentTasks(),
			AutoTerminatedRelationships:      orEmpty(p.AutoTerminatedRelationships),
			ScheduledState:                   "RUNNING",
			RetryCount:                       10,
			RetriedRelationships:             []string{},
			BackoffMechanism:                 "PENALIZE_FLOWFILE",
			MaxBackoffPeriod:                 "10 mins",
			ComponentType:                    "PROCESSOR",
			GroupIdentifier:                  nifiRootGroupID,
		})
	}

	for _, c := range d.Connections {
		conn, err := nifiConnectionFor(d, c)
		if err != nil {
			return nil, err
		}
		root.Connections = append(root.Connections, conn)
	}

	for _, p := range d.InputPorts {
		root.InputPorts = append(root.InputPorts, newNifiPort(p.ID, p.Name, endpointInputPort))
	}
	for _, p := range d.OutputPorts {
		root.OutputPorts = append(root.OutputPorts, newNifiPort(p.ID, p.Name, endpointOutputPort))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode nifi flow json: %w", err)
	}
	return data, nil
}

// nifiConnectionFor resolves the source among processors then input ports and
// the destination among processors then output ports.
func nifiConnectionFor(d *Definition, c *Connection) (nifiConnection, error) {
	relationship := c.SourceRelationship
	src, srcOK := findProcessorEndpoint(d, c.SourceName)
	if !srcOK {
		for _, p := range d.InputPorts {
			if p.Name == c.SourceName {
				src, srcOK = endpoint{ID: p.ID, Name: p.Name, Type: endpointInputPort}, true
				relationship = ""
				break
			}
		}
	}
	dst, dstOK := findProcessorEndpoint(d, c.TargetName)
	if !dstOK {
		for _, p := range d.OutputPorts {
			if p.Name == c.TargetName {
				dst, dstOK = endpoint{ID: p.ID, Name: p.Name, Type: endpointOutputPort}, true
				break
			}
		}
	}
	if !srcOK {
		return nifiConnection{}, srvErrors.NewComponentNotFoundError("connection source", c.SourceName)
	}
	if !dstOK {
		return nifiConnection{}, srvErrors.NewComponentNotFoundError("connection destination", c.TargetName)
	}

	return nifiConnection{
		Identifier:         c.ID,
		InstanceIdentifier: c.ID,
		Name:               c.SourceName + "/" + relationship + "/" + c.TargetName,
		Source: nifiEndpoint{
			ID:                 src.ID,
			Type:               src.Type,
			GroupID:            nifiRootGroupID,
			Name:               c.SourceName,
			InstanceIdentifier: src.ID,
		},
		Destination: nifiEndpoint{
			ID:                 dst.ID,
			Type:               dst.Type,
			GroupID:            nifiRootGroupID,
			Name:               dst.Name,
			InstanceIdentifier: dst.ID,
		},
		LabelIndex:                    1,
		SelectedRelationships:         []string{relationship},
		BackPressureObjectThreshold:   10,
		BackPressureDataSizeThreshold: "50 B",
		FlowFileExpiration:            "0 sec",
		Prioritizers:                  []string{},
		Bends:                         []any{},
		LoadBalanceStrategy:           "DO_NOT_LOAD_BALANCE",
		LoadBalanceCompression:        "DO_NOT_COMPRESS",
		ComponentType:                 "CONNECTION",
		GroupIdentifier:               nifiRootGroupID,
	}, nil
}

func findProcessorEndpoint(d *Definition, name string) (endpoint, bool) {
	for _, p := range d.Processors {
		if p.Name == name {
			return endpoint{ID: p.ID, Name: p.Name, Type: endpointProcessor}, true
		}
	}
	return endpoint{}, false
}

func newNifiPort(id, name, portType string) nifiPort {
	return nifiPort{
		Identifier:                       id,
		InstanceIdentifier:               id,
		Name:                             name,
		Type:                             portType,
		ConcurrentlySchedulableTaskCount: 1,
		ScheduledState:                   "RUNNING",
		AllowRemoteAccess:                true,
		PortFunction:                     "STANDARD",
		ComponentType:                    portType,
		GroupIdentifier:                  nifiRootGroupID,
	}
}
