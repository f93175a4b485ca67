package steps

import (
	"fmt"
	"strconv"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/flow"
)

// Every flow building step takes an optional trailing `in the "<target>" flow`
// selecting the agent, NiFi or C2 server flow it edits.
func (s *steps) registerFlow(ctx *godog.ScenarioContext) {
	ctx.Step(`^an? ([\w.]+) processor(?: with the name "([^"]*)")?(?: in the "([^"]*)" flow)?$`, s.processorIsSetUp)
	ctx.Step(`^an? ([\w.]+) processor with the "([^"]*)" property set to "([^"]*)"(?: in the "([^"]*)" flow)?$`, s.processorWithPropertyIsSetUp)
	ctx.Step(`^the "([^"]*)" property of the ([^\s"]+) processor is set to "([^"]*)"(?: in the "([^"]*)" flow)?$`, s.processorPropertyIsSet)
	ctx.Step(`^the "([^"]*)" property of the ([^\s"]+) processor is removed(?: in the "([^"]*)" flow)?$`, s.processorPropertyIsRemoved)
	ctx.Step(`^the scheduling period of the ([^\s"]+) processor is set to "([^"]*)"(?: in the "([^"]*)" flow)?$`, s.schedulingPeriodIsSet)
	ctx.Step(`^the ([^\s"]+) processor is (TIMER_DRIVEN|EVENT_DRIVEN|CRON_DRIVEN)(?: in the "([^"]*)" flow)?$`, s.schedulingStrategyIsSet)
	ctx.Step(`^the max concurrent tasks of the ([^\s"]+) processor is set to (\d+)(?: in the "([^"]*)" flow)?$`, s.maxConcurrentTasksIsSet)
	ctx.Step(`^the "([^"]*)" relationship of the ([^\s"]+) processor is auto-terminated(?: in the "([^"]*)" flow)?$`, s.relationshipIsAutoTerminated)
	ctx.Step(`^the "([^"]*)" relationship of the ([^\s"]+) processor is connected to the ([^\s"]+)(?: in the "([^"]*)" flow)?$`, s.relationshipIsConnected)
	ctx.Step(`^the connections to the ([^\s"]+) drop empty flow files(?: in the "([^"]*)" flow)?$`, s.connectionsDropEmpty)

	ctx.Step(`^a Funnel with the name "([^"]*)" is set up(?: in the "([^"]*)" flow)?$`, s.funnelIsSetUp)
	ctx.Step(`^the Funnel with the name "([^"]*)" is connected to the ([^\s"]+)(?: in the "([^"]*)" flow)?$`, s.funnelIsConnected)

	ctx.Step(`^an? ([\w.]+) controller service(?: with the name "([^"]*)")? is set up(?: in the "([^"]*)" flow)?$`, s.controllerServiceIsSetUp)
	ctx.Step(`^the "([^"]*)" property of the ([^\s"]+) controller service is set to "([^"]*)"(?: in the "([^"]*)" flow)?$`, s.controllerServicePropertyIsSet)
	ctx.Step(`^the ([^\s"]+) processor uses the ([^\s"]+) controller service as its "([^"]*)"(?: in the "([^"]*)" flow)?$`, s.processorUsesControllerService)

	ctx.Step(`^a parameter context with the name "([^"]*)" is set up(?: in the "([^"]*)" flow)?$`, s.parameterContextIsSetUp)
	ctx.Step(`^a parameter context with the name "([^"]*)" is set up with the following parameters:$`, s.parameterContextWithParameters)
	ctx.Step(`^a (sensitive )?parameter "([^"]*)" with the value "([^"]*)" is added to the "([^"]*)" parameter context(?: in the "([^"]*)" flow)?$`, s.parameterIsAdded)
	ctx.Step(`^the "([^"]*)" parameter context is bound to the root group(?: in the "([^"]*)" flow)?$`, s.parameterContextIsBound)

	ctx.Step(`^a RemoteProcessGroup with the name "([^"]*)" is set up for "([^"]*)"(?: using the (RAW|HTTP) protocol)?(?: in the "([^"]*)" flow)?$`, s.remoteProcessGroupIsSetUp)
	ctx.Step(`^an? (input|output) port with the name "([^"]*)" is set up on the "([^"]*)" RemoteProcessGroup( with compression)?(?: in the "([^"]*)" flow)?$`, s.remotePortIsSetUp)
	ctx.Step(`^an? (input|output) port with the id "([^"]*)" and the name "([^"]*)" is set up(?: in the "([^"]*)" flow)?$`, s.portIsSetUp)
	ctx.Step(`^an? (input|output) port matching the "([^"]*)" port of the "([^"]*)" RemoteProcessGroup is set up in the NiFi flow$`, s.nifiPortMatchingRemotePort)
	ctx.Step(`^the "([^"]*)" port is connected to the ([^\s"]+)(?: in the "([^"]*)" flow)?$`, s.portIsConnected)
}

func (s *steps) processorIsSetUp(className, name, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.AddProcessor(flow.NewProcessor(className, name))
	return nil
}

func (s *steps) processorWithPropertyIsSetUp(className, key, value, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.AddProcessor(flow.NewProcessor(className, "")).SetProperty(key, value)
	return nil
}

func (s *steps) processorPropertyIsSet(key, name, value, target string) error {
	p, err := s.processor(target, name)
	if err != nil {
		return err
	}
	p.SetProperty(key, unescapeNewlines(value))
	return nil
}

func (s *steps) processorPropertyIsRemoved(key, name, target string) error {
	p, err := s.processor(target, name)
	if err != nil {
		return err
	}
	p.RemoveProperty(key)
	return nil
}

func (s *steps) schedulingPeriodIsSet(name, period, target string) error {
	p, err := s.processor(target, name)
	if err != nil {
		return err
	}
	p.SchedulingPeriod = period
	return nil
}

func (s *steps) schedulingStrategyIsSet(name, strategy, target string) error {
	p, err := s.processor(target, name)
	if err != nil {
		return err
	}
	p.SetScheduling(strategy, "")
	return nil
}

func (s *steps) maxConcurrentTasksIsSet(name, tasks, target string) error {
	p, err := s.processor(target, name)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(tasks)
	if err != nil {
		return err
	}
	p.MaxConcurrentTasks = n
	return nil
}

func (s *steps) relationshipIsAutoTerminated(relationship, name, target string) error {
	p, err := s.processor(target, name)
	if err != nil {
		return err
	}
	p.AutoTerminate(relationship)
	return nil
}

func (s *steps) relationshipIsConnected(relationship, source, destination, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	if _, err := f.GetProcessor(source); err != nil {
		return err
	}
	f.Connect(source, relationship, destination)
	return nil
}

func (s *steps) connectionsDropEmpty(destination, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.SetDropEmptyForDestination(destination)
	return nil
}

func (s *steps) funnelIsSetUp(name, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.AddFunnel(flow.NewFunnel(name))
	return nil
}

func (s *steps) funnelIsConnected(name, destination, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.Connect(name, "", destination)
	return nil
}

func (s *steps) controllerServiceIsSetUp(className, name, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.AddControllerService(flow.NewControllerService(className, name))
	return nil
}

func (s *steps) controllerServicePropertyIsSet(key, name, value, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	cs, err := f.GetControllerService(name)
	if err != nil {
		return err
	}
	cs.SetProperty(key, value)
	return nil
}

func (s *steps) processorUsesControllerService(processorName, serviceName, property, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	if _, err := f.GetControllerService(serviceName); err != nil {
		return err
	}
	p, err := f.GetProcessor(processorName)
	if err != nil {
		return err
	}
	p.SetProperty(property, serviceName)
	return nil
}

func (s *steps) parameterContextIsSetUp(name, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.AddParameterContext(flow.NewParameterContext(name))
	return nil
}

// parameterContextWithParameters reads a table with a header row of
// name | value and an optional sensitive column.
func (s *steps) parameterContextWithParameters(name string, table *godog.Table) error {
	if len(table.Rows) == 0 {
		return fmt.Errorf("parameter table of %s has no header", name)
	}
	columns := make(map[string]int)
	for i, cell := range table.Rows[0].Cells {
		columns[cell.Value] = i
	}
	nameCol, okName := columns["name"]
	valueCol, okValue := columns["value"]
	if !okName || !okValue {
		return fmt.Errorf("parameter table of %s needs name and value columns", name)
	}
	sensitiveCol, hasSensitive := columns["sensitive"]

	pc := flow.NewParameterContext(name)
	for _, row := range table.Rows[1:] {
		p := flow.Parameter{Name: row.Cells[nameCol].Value, Value: row.Cells[valueCol].Value}
		if hasSensitive {
			p.Sensitive = row.Cells[sensitiveCol].Value == "true"
		}
		pc.SetParameter(p)
	}
	s.minifi("").Flow.AddParameterContext(pc)
	return nil
}

func (s *steps) parameterIsAdded(sensitive, name, value, contextName, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	pc, err := f.GetParameterContext(contextName)
	if err != nil {
		return err
	}
	pc.SetParameter(flow.Parameter{Name: name, Value: value, Sensitive: sensitive != ""})
	return nil
}

func (s *steps) parameterContextIsBound(name, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	return f.BindParameterContext(name)
}

func (s *steps) remoteProcessGroupIsSetUp(name, address, protocol, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.AddRemoteProcessGroup(address, name, protocol)
	return nil
}

func (s *steps) remotePortIsSetUp(direction, port, rpg, compression, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	if direction == "input" {
		return f.AddInputPortToRPG(rpg, port, compression != "")
	}
	return f.AddOutputPortToRPG(rpg, port, compression != "")
}

func (s *steps) portIsSetUp(direction, id, name, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	if direction == "input" {
		f.AddInputPort(id, name)
	} else {
		f.AddOutputPort(id, name)
	}
	return nil
}

// nifiPortMatchingRemotePort creates the NiFi side of a site-to-site port
// with the id the agent's remote process group uses for it.
func (s *steps) nifiPortMatchingRemotePort(direction, port, rpg string) error {
	nifiFlow, err := s.flowOf("NiFi")
	if err != nil {
		return err
	}
	agentFlow := s.minifi("").Flow
	if direction == "input" {
		id, err := agentFlow.InputPortIDOfRPG(rpg, port)
		if err != nil {
			return err
		}
		nifiFlow.AddInputPort(id, port)
		return nil
	}
	id, err := agentFlow.OutputPortIDOfRPG(rpg, port)
	if err != nil {
		return err
	}
	nifiFlow.AddOutputPort(id, port)
	return nil
}

func (s *steps) portIsConnected(port, destination, target string) error {
	f, err := s.flowOf(target)
	if err != nil {
		return err
	}
	f.Connect(port, "", destination)
	return nil
}
