package steps

import (
	"context"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
)

const kubernetesControllerService = "Kubernetes Controller Service"

func (s *steps) registerKubernetes(ctx *godog.ScenarioContext) {
	ctx.Step(`^an? ([\w.]+) processor in (?:a|the) Kubernetes cluster$`, s.processorInKubernetes)
	ctx.Step(`^the ([^\s"]+) processor has an? "([^"]*)" which is a Kubernetes Controller Service(?: with the "([^"]*)" property set to "([^"]*)")?$`, s.processorUsesKubernetesService)
}

// kubernetesAgent makes the default agent a pod of the scenario cluster.
func (s *steps) kubernetesAgent(ctx context.Context) (*infra.MinifiAsPod, error) {
	if svc, err := s.sc.Get(infra.DefaultMinifiName); err == nil {
		if pod, ok := svc.(*infra.MinifiAsPod); ok {
			return pod, nil
		}
	}
	cluster, err := s.sc.KubeCluster(ctx)
	if err != nil {
		return nil, err
	}
	pod := infra.NewMinifiAsPod(s.sc.Env, infra.DefaultMinifiName, cluster)
	s.sc.Add(infra.DefaultMinifiName, pod)
	return pod, nil
}

func (s *steps) processorInKubernetes(ctx context.Context, class string) error {
	pod, err := s.kubernetesAgent(ctx)
	if err != nil {
		return err
	}
	pod.Flow.AddProcessor(flow.NewProcessor(class, ""))
	return nil
}

func (s *steps) processorUsesKubernetesService(name, property, key, value string) error {
	f := s.minifi("").Flow
	p, err := f.GetProcessor(name)
	if err != nil {
		return err
	}
	cs, err := f.GetControllerService(kubernetesControllerService)
	if err != nil {
		cs = f.AddControllerService(flow.NewControllerService("KubernetesControllerService", kubernetesControllerService))
	}
	if key != "" {
		cs.SetProperty(key, value)
	}
	p.SetProperty(property, kubernetesControllerService)
	return nil
}
