package c2_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/c2"
	"github.com/kubev2v/flowharness/pkg/certificates"
)

const heartbeat = `{"operation":"heartbeat","agentInfo":{"identifier":"minifi-test-id","agentClass":"minifi-test-class"},"deviceInfo":{"identifier":"d1"}}`

var _ = Describe("C2 server", func() {
	var srv *c2.Server

	BeforeEach(func() {
		var err error
		srv, err = c2.NewServer(0, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w
	}

	// Given an operation queued for an agent
	// When the agent heartbeats twice
	// Then only the first response should carry the operation
	It("hands queued operations out once", func() {
		// Arrange
		id := srv.State().QueueOperation("minifi-test-id", c2.UpdateConfiguration("http://host:10090", "minifi-test-class"))

		// Act
		first := do(http.MethodPost, "/c2/config/heartbeat", heartbeat)
		second := do(http.MethodPost, "/c2/config/heartbeat", heartbeat)

		// Assert
		Expect(first.Code).To(Equal(http.StatusOK))
		var resp struct {
			RequestedOperations []c2.Operation `json:"requestedOperations"`
		}
		Expect(json.Unmarshal(first.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.RequestedOperations).To(HaveLen(1))
		Expect(resp.RequestedOperations[0].Identifier).To(Equal(id))
		Expect(resp.RequestedOperations[0].Operand).To(Equal("configuration"))
		Expect(resp.RequestedOperations[0].Args).To(HaveKeyWithValue("location", "http://host:10090/c2/config?class=minifi-test-class"))

		Expect(second.Body.String()).To(MatchJSON(`{"requestedOperations":[]}`))
		Expect(srv.State().HeartbeatsFrom("minifi-test-id")).To(Equal(2))
		Expect(srv.State().Heartbeats()[0].Body).To(HaveKey("deviceInfo"))
	})

	It("rejects malformed heartbeats", func() {
		w := do(http.MethodPost, "/c2/config/heartbeat", "{")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(srv.State().Heartbeats()).To(BeEmpty())
	})

	It("records acknowledgements", func() {
		w := do(http.MethodPost, "/c2/config/acknowledge", `{"operationId":"7","operationState":{"state":"FULLY_APPLIED","details":""}}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		ack, ok := srv.State().AckFor("7")
		Expect(ok).To(BeTrue())
		Expect(ack.State).To(Equal("FULLY_APPLIED"))
	})

	It("journals heartbeats, operations and acknowledgements", func() {
		id := srv.State().QueueOperation("minifi-test-id", c2.UpdateConfiguration("http://host:10090", "minifi-test-class"))

		do(http.MethodPost, "/c2/config/heartbeat", heartbeat)
		do(http.MethodPost, "/c2/config/acknowledge", fmt.Sprintf(`{"operationId":%q,"operationState":{"state":"FULLY_APPLIED"}}`, id))

		Expect(strings.Split(srv.State().Log(), "\n")).To(Equal([]string{
			"heartbeat from minifi-test-id of class minifi-test-class",
			"sent operation " + id + " update configuration",
			"operation " + id + " acknowledged with state FULLY_APPLIED",
		}))
	})

	It("requires an operation id in acknowledgements", func() {
		w := do(http.MethodPost, "/c2/config/acknowledge", `{"operationState":{"state":"NOT_APPLIED"}}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	Context("flows", func() {
		It("serves the flow of a class", func() {
			srv.State().SetFlow("minifi-test-class", c2.FlowDocument{ContentType: "text/yaml", Body: []byte("MiNiFi Config Version: 3\n")})

			w := do(http.MethodGet, "/c2/config?class=minifi-test-class", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("text/yaml"))
			Expect(w.Body.String()).To(Equal("MiNiFi Config Version: 3\n"))
		})

		It("returns 404 for unknown classes", func() {
			w := do(http.MethodGet, "/c2/config?class=other", "")

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 without a class", func() {
			w := do(http.MethodGet, "/c2/config", "")

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	// Given a server nothing has talked to yet
	// When its metrics are scraped
	// Then the pending operations gauge should already be exported
	It("exports the pending operations gauge before any traffic", func() {
		// Act
		w := do(http.MethodGet, "/metrics", "")

		// Assert
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("flowharness_c2_pending_operations 0"))

		srv.State().QueueOperation("minifi-test-id", c2.UpdateConfiguration("http://host:10090", "minifi-test-class"))
		Expect(do(http.MethodGet, "/metrics", "").Body.String()).To(ContainSubstring("flowharness_c2_pending_operations 1"))
		Expect(srv.State().PendingOperations()).To(Equal(1))
	})

	It("exports heartbeat counters", func() {
		do(http.MethodPost, "/c2/config/heartbeat", heartbeat)

		w := do(http.MethodGet, "/metrics", "")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`flowharness_c2_heartbeats_total{agent_class="minifi-test-class"} 1`))
	})

	Context("listening", func() {
		AfterEach(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(ctx)
		})

		It("serves over HTTP on the bound port", func() {
			Expect(srv.Start(context.TODO())).To(Succeed())
			Expect(srv.Port()).To(BeNumerically(">", 0))

			resp, err := http.Post(fmt.Sprintf("http://localhost:%d/c2/config/heartbeat", srv.Port()), "application/json", bytes.NewBufferString(heartbeat))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("serves over HTTPS with a certificate of the scenario CA", func() {
			ca, err := certificates.NewRootCA(time.Now().Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			kp, err := certificates.MakeServerCert("localhost", ca)
			Expect(err).NotTo(HaveOccurred())
			srv, err = c2.NewServer(0, kp)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv.Start(context.TODO())).To(Succeed())

			pool := x509.NewCertPool()
			Expect(pool.AppendCertsFromPEM(ca.CertPEM())).To(BeTrue())
			client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}

			resp, err := client.Get(fmt.Sprintf("https://localhost:%d/metrics", srv.Port()))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("flowharness_c2_pending_operations 0"))
		})
	})
})
