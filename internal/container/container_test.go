package container_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/container/containertest"
	"github.com/kubev2v/flowharness/internal/models"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
	"github.com/kubev2v/flowharness/pkg/wait"
)

var _ = Describe("Container", func() {
	var (
		ctx context.Context
		rt  *containertest.Runtime
		c   *container.Container
	)

	BeforeEach(func() {
		ctx = context.Background()
		rt = containertest.NewRuntime()
		c = container.New(rt, "minifi-primary-test-1", "apacheminificpp:behave", "test-1-net")
	})

	Context("Deploy", func() {
		// Given a container with files, a directory and a host binding
		// When it is deployed
		// Then the engine should receive all of them and the container should be running
		It("creates the container with its files and starts it", func() {
			// Arrange
			c.AddFile("/opt/minifi/conf", "config.yml", "flow")
			c.AddDirectory("/tmp/input", map[string]string{"b.txt": "b", "a.txt": "a"})
			c.AddHostFile("/host/resources", "/resources")
			c.Env["FOO"] = "bar"

			// Act
			err := c.Deploy(ctx)

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(c.State()).To(Equal(models.ContainerStateRunning))

			fake, ok := rt.Container("minifi-primary-test-1")
			Expect(ok).To(BeTrue())
			Expect(fake.Running).To(BeTrue())
			Expect(fake.Spec.Network()).To(Equal("test-1-net"))
			Expect(fake.Spec.Aliases()).To(ContainElement("minifi-primary-test-1"))
			Expect(fake.Spec.EnvVars()).To(HaveKeyWithValue("FOO", "bar"))
			Expect(fake.Spec.Binds()).To(ConsistOf(container.HostFile{HostPath: "/host/resources", ContainerPath: "/resources"}))

			content, ok := rt.File("minifi-primary-test-1", "/opt/minifi/conf/config.yml")
			Expect(ok).To(BeTrue())
			Expect(content).To(Equal("flow"))
			_, ok = rt.File("minifi-primary-test-1", "/tmp/input/a.txt")
			Expect(ok).To(BeTrue())
		})

		It("only starts an already deployed container once more after a stop", func() {
			Expect(c.Deploy(ctx)).To(Succeed())
			Expect(c.Stop(ctx)).To(Succeed())
			Expect(c.State()).To(Equal(models.ContainerStateStopped))

			Expect(c.Deploy(ctx)).To(Succeed())

			fake, _ := rt.Container("minifi-primary-test-1")
			Expect(fake.Starts).To(Equal(2))
			Expect(c.State()).To(Equal(models.ContainerStateRunning))
		})

		It("keeps the created state when the engine fails", func() {
			rt.CreateErr = context.DeadlineExceeded

			Expect(c.Deploy(ctx)).NotTo(Succeed())
			Expect(c.State()).To(Equal(models.ContainerStateCreated))
		})
	})

	It("rejects starting a container that was never deployed", func() {
		err := c.Start(ctx)

		Expect(srvErrors.IsInvalidStateError(err)).To(BeTrue())
	})

	Context("WaitForLog", func() {
		BeforeEach(func() {
			Expect(c.Deploy(ctx)).To(Succeed())
		})

		It("returns once the text shows up", func() {
			go func() {
				time.Sleep(30 * time.Millisecond)
				rt.AppendLogs("minifi-primary-test-1", "Starting Flow Controller")
			}()

			err := c.WaitForLogMatch(ctx, "startup", time.Second, func(logs string) bool {
				return len(logs) > 0
			}, wait.WithInterval(10*time.Millisecond))

			Expect(err).NotTo(HaveOccurred())
		})

		// Given a container that exits while we wait for a log line
		// When we wait for the line
		// Then the wait should end early with ContainerExitedError
		It("bails out when the container exits", func() {
			// Arrange
			rt.Exit("minifi-primary-test-1", 137)

			// Act
			err := c.WaitForLog(ctx, 5*time.Second, "never printed")

			// Assert
			Expect(srvErrors.IsContainerExitedError(err)).To(BeTrue())
			Expect(c.State()).To(Equal(models.ContainerStateExited))
			code, exited := c.ExitCode(ctx)
			Expect(exited).To(BeTrue())
			Expect(code).To(Equal(137))
		})

		It("times out when the text never shows up", func() {
			err := c.WaitForLogMatch(ctx, "never", 50*time.Millisecond, func(string) bool { return false }, wait.WithInterval(10*time.Millisecond))

			Expect(srvErrors.IsConditionTimeoutError(err)).To(BeTrue())
		})

		It("counts occurrences", func() {
			rt.AppendLogs("minifi-primary-test-1", "heartbeat", "heartbeat")

			Expect(c.WaitForLogCount(ctx, time.Second, "heartbeat", 2)).To(Succeed())
		})
	})

	Context("files", func() {
		BeforeEach(func() {
			Expect(c.Deploy(ctx)).To(Succeed())
		})

		It("reads the files of a directory", func() {
			rt.ExecFunc = func(_ string, cmd []string) container.ExecResult {
				switch cmd[0] {
				case "find":
					return container.ExecResult{Output: "/tmp/output/b\n/tmp/output/a\n"}
				case "cat":
					return container.ExecResult{Output: "content of " + cmd[1]}
				}
				return container.ExecResult{ExitCode: 1}
			}

			contents, err := c.FileContents(ctx, "/tmp/output")

			Expect(err).NotTo(HaveOccurred())
			Expect(contents).To(Equal([]string{"content of /tmp/output/a", "content of /tmp/output/b"}))
		})

		It("returns a CommandError on a failing command", func() {
			rt.ExecFunc = func(string, []string) container.ExecResult {
				return container.ExecResult{ExitCode: 1, Output: "No such file"}
			}

			_, err := c.ReadFile(ctx, "/nope")

			Expect(srvErrors.IsCommandError(err)).To(BeTrue())
		})
	})

	// Given a deployed container
	// When it is cleaned up twice
	// Then the second clean up should be a no-op
	It("cleans up idempotently", func() {
		// Arrange
		Expect(c.Deploy(ctx)).To(Succeed())

		// Act
		Expect(c.CleanUp(ctx)).To(Succeed())
		err := c.CleanUp(ctx)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		fake, _ := rt.Container("minifi-primary-test-1")
		Expect(fake.Removed).To(BeTrue())
	})
})

var _ = Describe("RunOnce", func() {
	It("returns the exit code and output and removes the container", func() {
		rt := containertest.NewRuntime()
		rt.OnceResult = container.ExecResult{ExitCode: 0, Output: "3"}

		res, err := container.RunOnce(context.Background(), rt, container.NewSpec("az-cli", "mcr.microsoft.com/azure-cli"))

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Output).To(Equal("3"))
		fake, _ := rt.Container("az-cli")
		Expect(fake.Removed).To(BeTrue())
	})
})
