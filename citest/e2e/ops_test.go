package e2e_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/toolgate/toolgate/citest/testutil"
	"github.com/toolgate/toolgate/internal/metrics"
	"github.com/toolgate/toolgate/internal/ops"
)

// getJSON fetches a URL and decodes the JSON body into out.
func getJSON(url string, out any) int {
	resp, err := http.Get(url)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	if out != nil && len(body) > 0 {
		ExpectWithOffset(1, json.Unmarshal(body, out)).To(Succeed())
	}
	return resp.StatusCode
}

var _ = Describe("Ops Surface", func() {
	var httpSrv *httptest.Server

	BeforeEach(func() {
		// Mirror the 'toolgate serve' wiring against the suite daemon.
		opsSrv := ops.New(&ops.Config{Host: "127.0.0.1"}, ops.Sources{
			Status: func() any {
				return map[string]any{
					"running":  true,
					"host":     testServer.Config.Host,
					"linePort": testServer.Server.LinePort(),
					"mcpPort":  testServer.Server.MCPPort(),
				}
			},
			Tools:   testServer.Server.Tools,
			Metrics: metrics.Snapshot,
		})
		httpSrv = httptest.NewServer(opsSrv.Router())
	})

	AfterEach(func() {
		httpSrv.Close()
	})

	Describe("health and status", func() {
		It("answers the health check", func() {
			var health map[string]string
			Expect(getJSON(httpSrv.URL+"/healthz", &health)).To(Equal(200))
			Expect(health["status"]).To(Equal("ok"))
		})

		It("reports daemon status", func() {
			var status map[string]any
			Expect(getJSON(httpSrv.URL+"/status", &status)).To(Equal(200))
			Expect(status["running"]).To(BeTrue())
			Expect(status["linePort"]).To(BeNumerically("==", testServer.Server.LinePort()))
		})
	})

	Describe("tool inspection", func() {
		It("lists the advertised tools", func() {
			var listing struct {
				Tools []struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				} `json:"tools"`
			}
			Expect(getJSON(httpSrv.URL+"/tools", &listing)).To(Equal(200))
			Expect(listing.Tools).To(HaveLen(testServer.Catalog.Len()))
		})

		It("fetches a single tool by name", func() {
			var tool struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			Expect(getJSON(httpSrv.URL+"/tools/ping", &tool)).To(Equal(200))
			Expect(tool.Name).To(Equal("ping"))
			Expect(tool.Description).NotTo(BeEmpty())
		})

		It("404s unknown tools", func() {
			var errResp struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			Expect(getJSON(httpSrv.URL+"/tools/no_such_tool", &errResp)).To(Equal(404))
			Expect(errResp.Error.Code).To(Equal("NOT_FOUND"))
			Expect(errResp.Error.Message).To(ContainSubstring("no_such_tool"))
		})
	})

	Describe("metrics", func() {
		It("exposes daemon counters", func() {
			conn, err := testutil.DialLine(testServer.LineAddr())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()
			_, err = conn.Roundtrip(map[string]string{"type": "ping"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var counters map[string]uint64
			Expect(getJSON(httpSrv.URL+"/metrics", &counters)).To(Equal(200))
			Expect(counters).To(HaveKey("line_messages"))
			Expect(counters["line_messages"]).To(BeNumerically(">", 0))
			Expect(counters).To(HaveKey("tool_calls"))
		})
	})

	Describe("event stream", func() {
		It("streams bus events over SSE", func() {
			sse := testutil.NewSSEClient(httpSrv.URL)
			Expect(sse.Connect(ctx, "/events")).To(Succeed())
			defer sse.Close()

			_, err := sse.WaitForEvent("connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			// Opening a line connection publishes conn.opened on the bus.
			conn, err := testutil.DialLine(testServer.LineAddr())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			evt, err := sse.WaitForBusEvent("conn.opened", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data struct {
				Type string `json:"type"`
				Data struct {
					Protocol   string `json:"protocol"`
					RemoteAddr string `json:"remoteAddr"`
				} `json:"data"`
			}
			Expect(json.Unmarshal(evt.Data, &data)).To(Succeed())
			Expect(data.Data.Protocol).To(Equal("line"))
			Expect(data.Data.RemoteAddr).NotTo(BeEmpty())
		})
	})
})
