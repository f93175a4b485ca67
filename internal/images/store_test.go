package images_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/container/containertest"
	"github.com/kubev2v/flowharness/internal/images"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		rt    *containertest.Runtime
		store *images.Store
		agent config.Agent
	)

	BeforeEach(func() {
		ctx = context.Background()
		rt = containertest.NewRuntime()
		agent = config.Agent{TagPrefix: "", Version: "1.0.0"}
		rt.Images[agent.AgentImage()] = []string{"/bin/sh -c #(nop) ENV MINIFI_VERSION=1.0.0"}
		store = images.NewStore(rt, agent, GinkgoT().TempDir())
	})

	// Given an engine with a recipe
	// When the image is requested twice
	// Then it should be built only once
	It("builds an image once and caches it", func() {
		// Act
		first, err := store.GetImage(ctx, images.EngineMQTTBroker)
		Expect(err).NotTo(HaveOccurred())
		second, err := store.GetImage(ctx, images.EngineMQTTBroker)
		Expect(err).NotTo(HaveOccurred())

		// Assert
		Expect(first).To(Equal(second))
		Expect(rt.Builds).To(HaveLen(1))
		Expect(rt.Builds[0].Dockerfile).To(ContainSubstring("FROM eclipse-mosquitto:2.0.14"))
	})

	It("shares one build between concurrent callers", func() {
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := store.GetImage(ctx, images.EnginePostgreSQLServer)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(len(rt.Builds)).To(BeNumerically("<=", 5))
		Expect(rt.Builds[0].ContextFiles).To(HaveKey("init-user-db.sh"))
		Expect(string(rt.Builds[0].ContextFiles["init-user-db.sh"])).To(ContainSubstring("'banana'"))
	})

	It("fails with ImageNotFoundError for an unknown engine", func() {
		_, err := store.GetImage(ctx, "splunk")

		Expect(srvErrors.IsImageNotFoundError(err)).To(BeTrue())
	})

	It("does not cache failed builds", func() {
		rt.BuildErr = errors.New("boom")
		_, err := store.GetImage(ctx, images.EngineHTTPProxy)
		Expect(err).To(HaveOccurred())

		rt.BuildErr = nil
		tag, err := store.GetImage(ctx, images.EngineHTTPProxy)

		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal("flowharness/http-proxy:latest"))
		Expect(rt.Builds[0].Dockerfile).To(ContainSubstring("htpasswd -b -c /etc/squid/.squid_users admin test101"))
	})

	It("builds agent recipes on top of the agent image", func() {
		_, err := store.GetImage(ctx, images.EngineMinifiSQL)

		Expect(err).NotTo(HaveOccurred())
		Expect(rt.Builds[0].Dockerfile).To(HavePrefix("FROM apacheminificpp:1.0.0\n"))
		Expect(rt.Builds[0].Dockerfile).To(ContainSubstring("Servername = postgres"))
	})

	Context("python recipes", func() {
		It("uses the classic layout and installs pip on the alpine image", func() {
			_, err := store.GetImage(ctx, images.EngineMinifiNifiPythonSystem)

			Expect(err).NotTo(HaveOccurred())
			df := rt.Builds[0].Dockerfile
			Expect(df).To(ContainSubstring("RUN apk --update --no-cache add py3-pip"))
			Expect(df).To(ContainSubstring("pip3 install --break-system-packages 'langchain<=0.17.0'"))
			Expect(df).To(ContainSubstring("/opt/minifi/minifi-current/minifi-python/nifi_python_processors"))
		})

		It("uses the FHS layout when the image history says so", func() {
			rt.Images[agent.AgentImage()] = []string{"ENV MINIFI_INSTALLATION_TYPE=FHS"}

			_, err := store.GetImage(ctx, images.EngineMinifiNifiPythonInline)

			Expect(err).NotTo(HaveOccurred())
			df := rt.Builds[0].Dockerfile
			Expect(df).To(ContainSubstring("/var/lib/nifi-minifi-cpp/minifi-python/nifi_python_processors"))
			Expect(df).To(ContainSubstring(`s/langchain==[0-9.]\+/langchain<=0.17.0/`))
		})

		It("copies the example processors from the resource directory", func() {
			dir := GinkgoT().TempDir()
			Expect(os.MkdirAll(filepath.Join(dir, "python"), 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "python", "CreateFlowFile.py"), []byte("pass"), 0o644)).To(Succeed())
			store = images.NewStore(rt, agent, dir)

			_, err := store.GetImage(ctx, images.EngineMinifiPythonExamples)

			Expect(err).NotTo(HaveOccurred())
			Expect(rt.Builds[0].ContextFiles).To(HaveKey("CreateFlowFile.py"))
			Expect(rt.Builds[0].Dockerfile).To(ContainSubstring("COPY CreateFlowFile.py /opt/minifi/minifi-current/minifi-python/nifi_python_processors/CreateFlowFile.py"))
		})
	})

	It("accepts registered recipes", func() {
		store.Register("custom", func(context.Context, *images.Store) (container.BuildRequest, error) {
			return container.BuildRequest{Tag: "custom:1", Dockerfile: "FROM scratch"}, nil
		})

		tag, err := store.GetImage(ctx, "custom")

		Expect(err).NotTo(HaveOccurred())
		Expect(tag).To(Equal("custom:1"))
		Expect(store.Engines()).To(ContainElement("custom"))
	})

	// Given a build shared by two callers
	// When the caller that started it gives up
	// Then the other caller should still get the image
	It("keeps a shared build going when its first caller cancels", func() {
		// Arrange
		release := make(chan struct{})
		started := make(chan struct{})
		store.Register("slow", func(buildCtx context.Context, _ *images.Store) (container.BuildRequest, error) {
			close(started)
			select {
			case <-release:
			case <-buildCtx.Done():
				return container.BuildRequest{}, buildCtx.Err()
			}
			return container.BuildRequest{Tag: "slow:1", Dockerfile: "FROM scratch"}, nil
		})
		first, cancelFirst := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := store.GetImage(first, "slow")
			firstErr <- err
		}()
		Eventually(started).Should(BeClosed())

		second := make(chan string, 1)
		go func() {
			defer GinkgoRecover()
			tag, err := store.GetImage(ctx, "slow")
			Expect(err).NotTo(HaveOccurred())
			second <- tag
		}()

		// Act
		cancelFirst()
		Eventually(firstErr).Should(Receive(MatchError(context.Canceled)))
		close(release)

		// Assert
		Eventually(second).Should(Receive(Equal("slow:1")))
		Expect(rt.Builds).To(HaveLen(1))
	})

	It("removes built images on clean up", func() {
		tag, err := store.GetImage(ctx, images.EngineKafkaBroker)
		Expect(err).NotTo(HaveOccurred())

		Expect(store.CleanUp(ctx)).To(Succeed())

		exists, err := rt.ImageExists(ctx, tag)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	// Given an image left behind by an earlier process
	// When a fresh store removes its engine
	// Then the image should be gone
	It("removes images of an earlier run", func() {
		// Arrange
		tag, err := store.GetImage(ctx, images.EngineMQTTBroker)
		Expect(err).NotTo(HaveOccurred())
		fresh := images.NewStore(rt, agent, GinkgoT().TempDir())

		// Act
		err = fresh.Remove(ctx, images.EngineMQTTBroker)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(rt.Images).NotTo(HaveKey(tag))
		Expect(fresh.Remove(ctx, images.EngineKafkaBroker)).To(Succeed())
		Expect(srvErrors.IsImageNotFoundError(fresh.Remove(ctx, "unknown"))).To(BeTrue())
	})
})
