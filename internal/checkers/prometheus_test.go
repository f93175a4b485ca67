package checkers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/flowharness/internal/checkers"
)

const (
	emptyVector = `{"status":"success","data":{"resultType":"vector","result":[]}}`
	oneSample   = `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"__name__":"m"},"value":[1700000000,"1"]}]}}`
)

var _ = Describe("PrometheusChecker", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		known   map[string]bool
		queries []string
		check   *checkers.PrometheusChecker
	)

	BeforeEach(func() {
		ctx = context.Background()
		known = map[string]bool{}
		queries = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.ParseForm()).To(Succeed())
			q := r.Form.Get("query")
			queries = append(queries, q)
			w.Header().Set("Content-Type", "application/json")
			if known[q] {
				_, _ = w.Write([]byte(oneSample))
				return
			}
			_, _ = w.Write([]byte(emptyVector))
		}))
		DeferCleanup(server.Close)

		var err error
		check, err = checkers.NewPrometheusChecker(server.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	It("builds a label selector in key order", func() {
		known[`minifi_queue_size{connection_name="c",metric_class="QueueMetrics"}`] = true

		ok, err := check.MetricExists(ctx, "minifi_queue_size", map[string]string{"metric_class": "QueueMetrics", "connection_name": "c"})

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("requires every series of a metric class", func() {
		for _, name := range []string{"minifi_queue_data_size", "minifi_queue_data_size_max", "minifi_queue_size"} {
			known[name+`{metric_class="QueueMetrics"}`] = true
		}

		ok, err := check.VerifyMetricClass(ctx, "QueueMetrics")

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(queries[len(queries)-1]).To(HavePrefix("minifi_queue_size_max"))
	})

	It("checks the per processor series", func() {
		for _, q := range []string{"minifi_onTrigger_invocations", "minifi_average_onTrigger_runtime_milliseconds", "minifi_last_onTrigger_runtime_milliseconds", "minifi_transferred_flow_files"} {
			known[q+`{metric_class="GetFileMetrics",processor_name="GetFile1"}`] = true
		}

		ok, err := check.VerifyProcessorMetric(ctx, "GetFileMetrics", "GetFile1")

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		for _, q := range queries {
			Expect(strings.Contains(q, `processor_name="GetFile1"`)).To(BeTrue())
		}
	})

	It("rejects unknown metric classes", func() {
		_, err := check.VerifyMetricClass(ctx, "NoSuchMetrics")
		Expect(err).To(HaveOccurred())
	})
})
