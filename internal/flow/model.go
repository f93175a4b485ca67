package flow

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

const (
	SchedulingTimerDriven = "TIMER_DRIVEN"
	SchedulingEventDriven = "EVENT_DRIVEN"
	SchedulingCronDriven  = "CRON_DRIVEN"

	defaultSchedulingPeriod = "1 sec"
	minifiProcessorPackage  = "org.apache.nifi.minifi.processors."
)

// Processor is a flow node executing one processor class.
type Processor struct {
	ID                          string
	Name                        string
	ClassName                   string
	SchedulingStrategy          string
	SchedulingPeriod            string
	MaxConcurrentTasks          int
	Properties                  map[string]string
	AutoTerminatedRelationships []string
}

// NewProcessor creates a timer driven processor. An empty name defaults to the class name.
func NewProcessor(className, name string) *Processor {
	if name == "" {
		name = className
	}
	return &Processor{
		ID:                 uuid.NewString(),
		Name:               name,
		ClassName:          className,
		SchedulingStrategy: SchedulingTimerDriven,
		SchedulingPeriod:   defaultSchedulingPeriod,
		Properties:         make(map[string]string),
	}
}

func (p *Processor) SetProperty(key, value string) *Processor {
	p.Properties[key] = value
	return p
}

func (p *Processor) RemoveProperty(key string) {
	delete(p.Properties, key)
}

func (p *Processor) SetScheduling(strategy, period string) *Processor {
	p.SchedulingStrategy = strategy
	if period != "" {
		p.SchedulingPeriod = period
	}
	return p
}

// AutoTerminate adds relationships to the auto-terminated list, skipping duplicates.
func (p *Processor) AutoTerminate(relationships ...string) *Processor {
	for _, rel := range relationships {
		if !slices.Contains(p.AutoTerminatedRelationships, rel) {
			p.AutoTerminatedRelationships = append(p.AutoTerminatedRelationships, rel)
		}
	}
	return p
}

// MinifiClass returns the fully qualified class name used in agent documents.
func (p *Processor) MinifiClass() string {
	if strings.Contains(p.ClassName, ".") {
		return p.ClassName
	}
	return minifiProcessorPackage + p.ClassName
}

func (p *Processor) concurrentTasks() int {
	if p.MaxConcurrentTasks <= 0 {
		return 1
	}
	return p.MaxConcurrentTasks
}

type ControllerService struct {
	ID         string
	Name       string
	ClassName  string
	Properties map[string]string
}

func NewControllerService(className, name string) *ControllerService {
	if name == "" {
		name = className
	}
	return &ControllerService{
		ID:         uuid.NewString(),
		Name:       name,
		ClassName:  className,
		Properties: make(map[string]string),
	}
}

func (c *ControllerService) SetProperty(key, value string) *ControllerService {
	c.Properties[key] = value
	return c
}

type Funnel struct {
	ID   string
	Name string
}

func NewFunnel(name string) *Funnel {
	return &Funnel{ID: uuid.NewString(), Name: name}
}

// Connection links a source relationship to a destination, both referenced by name.
type Connection struct {
	ID                 string
	SourceName         string
	SourceRelationship string
	TargetName         string
	DropEmptyFlowFiles bool
}

func NewConnection(sourceName, relationship, targetName string) *Connection {
	return &Connection{
		ID:                 uuid.NewString(),
		SourceName:         sourceName,
		SourceRelationship: relationship,
		TargetName:         targetName,
	}
}

func (c *Connection) Name() string {
	return c.SourceName + "/" + c.SourceRelationship + "/" + c.TargetName
}

type Parameter struct {
	Name        string
	Description string
	Sensitive   bool
	Value       string
}

type ParameterContext struct {
	ID         string
	Name       string
	Parameters []Parameter
}

func NewParameterContext(name string) *ParameterContext {
	return &ParameterContext{ID: uuid.NewString(), Name: name}
}

// SetParameter adds a parameter or replaces the one with the same name.
func (pc *ParameterContext) SetParameter(p Parameter) {
	for i := range pc.Parameters {
		if pc.Parameters[i].Name == p.Name {
			pc.Parameters[i] = p
			return
		}
	}
	pc.Parameters = append(pc.Parameters, p)
}

type InputPort struct {
	ID   string
	Name string
}

type OutputPort struct {
	ID   string
	Name string
}

// nonEmptyKeys drops properties without a key.
func nonEmptyKeys(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if k != "" {
			out[k] = v
		}
	}
	return out
}
