package flow_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/flow"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

var _ = Describe("Definition", func() {
	var d *flow.Definition

	BeforeEach(func() {
		d = flow.NewDefinition("")
	})

	It("defaults the flow name", func() {
		Expect(d.Name).To(Equal(flow.DefaultMinifiFlowName))
	})

	Context("processors", func() {
		// Given a processor added without a name
		// When we look it up by its class name
		// Then the same processor should be returned
		It("uses the class name when no name is given", func() {
			// Arrange
			p := d.AddProcessor(flow.NewProcessor("GenerateFlowFile", ""))

			// Act
			got, err := d.GetProcessor("GenerateFlowFile")

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeIdenticalTo(p))
			Expect(got.SchedulingStrategy).To(Equal(flow.SchedulingTimerDriven))
			Expect(got.SchedulingPeriod).To(Equal("1 sec"))
		})

		It("returns ComponentNotFoundError for an unknown processor", func() {
			_, err := d.GetProcessor("missing")

			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsComponentNotFoundError(err)).To(BeTrue())
		})

		It("does not duplicate auto-terminated relationships", func() {
			p := flow.NewProcessor("LogAttribute", "log")

			p.AutoTerminate("success", "failure").AutoTerminate("success")

			Expect(p.AutoTerminatedRelationships).To(Equal([]string{"success", "failure"}))
		})

		It("qualifies short class names", func() {
			Expect(flow.NewProcessor("PutFile", "").MinifiClass()).To(Equal("org.apache.nifi.minifi.processors.PutFile"))
			Expect(flow.NewProcessor("org.example.Custom", "").MinifiClass()).To(Equal("org.example.Custom"))
		})
	})

	Context("remote process groups", func() {
		BeforeEach(func() {
			d.AddRemoteProcessGroup("http://nifi:8080/nifi", "RemoteProcessGroup", "")
		})

		// Given a remote process group with an input port
		// When we ask for the id of that port
		// Then it should match the port stored in the group
		It("exposes the ids of its ports", func() {
			// Arrange
			Expect(d.AddInputPortToRPG("RemoteProcessGroup", "to_nifi", true)).To(Succeed())
			rpg, err := d.GetRemoteProcessGroup("RemoteProcessGroup")
			Expect(err).NotTo(HaveOccurred())

			// Act
			id, err := d.InputPortIDOfRPG("RemoteProcessGroup", "to_nifi")

			// Assert
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(rpg.InputPorts[0].ID))
			Expect(rpg.Protocol).To(Equal(flow.ProtocolRaw))
			Expect(rpg.InputPorts[0].UseCompression).To(BeTrue())
		})

		It("fails for unknown groups and ports", func() {
			err := d.AddOutputPortToRPG("other", "from_nifi", false)
			Expect(srvErrors.IsComponentNotFoundError(err)).To(BeTrue())

			_, err = d.OutputPortIDOfRPG("RemoteProcessGroup", "from_nifi")
			Expect(srvErrors.IsComponentNotFoundError(err)).To(BeTrue())
		})
	})

	Context("parameter contexts", func() {
		It("binds an existing context and replaces parameters by name", func() {
			pc := d.AddParameterContext(flow.NewParameterContext("my-context"))
			pc.SetParameter(flow.Parameter{Name: "dir", Value: "/tmp/input"})
			pc.SetParameter(flow.Parameter{Name: "dir", Value: "/tmp/output"})

			Expect(d.BindParameterContext("my-context")).To(Succeed())
			Expect(d.ParameterContextName).To(Equal("my-context"))
			Expect(pc.Parameters).To(HaveLen(1))
			Expect(pc.Parameters[0].Value).To(Equal("/tmp/output"))
		})

		It("refuses to bind an unknown context", func() {
			err := d.BindParameterContext("nope")

			Expect(srvErrors.IsComponentNotFoundError(err)).To(BeTrue())
			Expect(d.ParameterContextName).To(BeEmpty())
		})
	})

	// Given two connections into the same destination
	// When drop-empty is set for that destination
	// Then only those connections should drop empty flow files
	It("sets drop-empty only on connections into the destination", func() {
		// Arrange
		a := d.Connect("Gen", "success", "Put")
		b := d.Connect("Get", "success", "Put")
		c := d.Connect("Gen", "success", "Log")

		// Act
		d.SetDropEmptyForDestination("Put")

		// Assert
		Expect(a.DropEmptyFlowFiles).To(BeTrue())
		Expect(b.DropEmptyFlowFiles).To(BeTrue())
		Expect(c.DropEmptyFlowFiles).To(BeFalse())
		Expect(a.Name()).To(Equal("Gen/success/Put"))
	})
})
