package infra

import (
	"context"
	"fmt"

	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/kube"
)

// MinifiAsPod runs the agent as the daemon/minifi pod of a kind cluster.
// Its conf files reach the pod through the conf directory mounted into the node.
type MinifiAsPod struct {
	*MinifiContainer

	cluster *kube.Cluster
}

func NewMinifiAsPod(env *Env, name string, cluster *kube.Cluster) *MinifiAsPod {
	return &MinifiAsPod{
		MinifiContainer: NewMinifiContainer(env, name),
		cluster:         cluster,
	}
}

// Deploy writes the conf files, creates the helper objects, loads the agent image and starts the pod.
func (m *MinifiAsPod) Deploy(ctx context.Context) error {
	layout, err := m.env.Images.Layout(ctx)
	if err != nil {
		return err
	}
	doc, err := flow.MinifiYAMLSerializer{}.Serialize(m.Flow)
	if err != nil {
		return fmt.Errorf("failed to serialize flow of %s: %w", m.Name(), err)
	}

	m.log.Infow("setting up the kind kubernetes cluster")
	for name, content := range map[string]string{
		"minifi.properties":     m.renderProperties(layout),
		"minifi-log.properties": m.renderLogProperties(),
		"config.yml":            string(doc),
	} {
		if err := m.cluster.WriteMinifiConf(name, content); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := m.cluster.CreateHelperObjects(ctx); err != nil {
		return err
	}
	if err := m.env.Runtime.TagImage(ctx, m.Image(), kube.MinifiImage); err != nil {
		return err
	}
	if err := m.cluster.LoadImage(ctx, kube.MinifiImage); err != nil {
		return err
	}
	return m.cluster.CreateMinifiPod(ctx)
}

func (m *MinifiAsPod) Logs(ctx context.Context) (string, error) {
	return m.cluster.Logs(ctx)
}

func (m *MinifiAsPod) Exited(ctx context.Context) bool {
	running, err := m.cluster.PodRunning(ctx, kube.MinifiNamespace, kube.MinifiPod)
	return err == nil && !running
}

// CleanUp leaves the pod alone; the cluster is deleted with the scenario.
func (m *MinifiAsPod) CleanUp(context.Context) error {
	return nil
}
