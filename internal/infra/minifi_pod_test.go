package infra_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/container/containertest"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/internal/kube"
)

var _ = Describe("MinifiAsPod", func() {
	var (
		ctx       context.Context
		rt        *containertest.Runtime
		env       *infra.Env
		loaded    []string
		cluster   *kube.Cluster
		minifi    *infra.MinifiAsPod
		pod       *corev1.Pod
		clientset *fake.Clientset
	)

	BeforeEach(func() {
		ctx = context.Background()
		rt = containertest.NewRuntime()
		env = newEnv(rt)
		loaded = nil
		_, err := rt.Create(ctx, container.NewSpec(kube.ControlPlaneContainer, "kindest/node"))
		Expect(err).NotTo(HaveOccurred())

		pod = &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Namespace: kube.MinifiNamespace, Name: kube.MinifiPod},
			Status:     corev1.PodStatus{Phase: corev1.PodRunning},
		}
		clientset = fake.NewClientset(
			&corev1.ServiceAccount{ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "default"}},
			&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "hello-world-one"}, Status: corev1.PodStatus{Phase: corev1.PodRunning}},
			&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "hello-world-two"}, Status: corev1.PodStatus{Phase: corev1.PodRunning}},
			&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "kube-system", Name: "metrics-server-abc"}, Status: corev1.PodStatus{Phase: corev1.PodRunning}},
			pod,
		)
		runner := func(_ context.Context, _ []string, _ string, args ...string) ([]byte, error) {
			loaded = append(loaded, args...)
			return nil, nil
		}
		cluster = kube.NewCluster(rt, env.ResourceDir, GinkgoT().TempDir(),
			kube.WithKindBinary("kind"), kube.WithClient(clientset), kube.WithCommandRunner(runner))
		Expect(cluster.Prepare(ctx)).To(Succeed())

		minifi = infra.NewMinifiAsPod(env, infra.DefaultMinifiName, cluster)
	})

	// Given an agent flow meant for the cluster
	// When the pod is deployed
	// Then the conf files should land in the mounted directory and the agent image be loaded
	It("writes the conf files and loads the tagged agent image", func() {
		// Arrange
		minifi.Flow.AddProcessor(flow.NewProcessor("LogAttribute", "LogAttribute"))
		minifi.SetProperty("nifi.metrics.publisher.class", "LogMetricsPublisher")

		// Act
		err := minifi.Deploy(ctx)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		props, err := os.ReadFile(filepath.Join(cluster.ConfDir(), "minifi.properties"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(props)).To(ContainSubstring("nifi.metrics.publisher.class=LogMetricsPublisher\n"))
		Expect(filepath.Join(cluster.ConfDir(), "minifi-log.properties")).To(BeAnExistingFile())
		cfg, err := os.ReadFile(filepath.Join(cluster.ConfDir(), "config.yml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(cfg)).To(ContainSubstring("MiNiFi Config Version: 3"))
		Expect(rt.Images).To(HaveKey(kube.MinifiImage))
		Expect(loaded).To(Equal([]string{"load", "docker-image", kube.MinifiImage}))
	})

	It("reads its log from the pod and reports the pod state", func() {
		Expect(minifi.Exited(ctx)).To(BeFalse())

		pod.Status.Phase = corev1.PodSucceeded
		_, err := clientset.CoreV1().Pods(kube.MinifiNamespace).UpdateStatus(ctx, pod, metav1.UpdateOptions{})
		Expect(err).NotTo(HaveOccurred())

		Expect(minifi.Exited(ctx)).To(BeTrue())
		logs, err := minifi.Logs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(logs).NotTo(BeEmpty())
		Expect(minifi.CleanUp(ctx)).To(Succeed())
	})
})
