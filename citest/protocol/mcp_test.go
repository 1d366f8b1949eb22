package protocol_test

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/toolgate/toolgate/citest/testutil"
)

// rpcReply mirrors the JSON-RPC response envelope.
type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseRPC(data string) rpcReply {
	var r rpcReply
	ExpectWithOffset(1, json.Unmarshal([]byte(data), &r)).To(Succeed())
	return r
}

// callContent digs the text content and error flag out of a tools/call result.
func callContent(result json.RawMessage) (string, bool) {
	var call struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	ExpectWithOffset(1, json.Unmarshal(result, &call)).To(Succeed())
	ExpectWithOffset(1, call.Content).To(HaveLen(1))
	ExpectWithOffset(1, call.Content[0].Type).To(Equal("text"))
	return call.Content[0].Text, call.IsError
}

var _ = Describe("MCP Protocol", func() {

	// ==================== Initialize ====================

	Describe("initialize", func() {
		body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"citest","version":"0"}}}`

		It("negotiates protocol version and announces the server", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(), body)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(200))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get("mcp-protocol-version")).To(Equal("2025-06-18"))
			Expect(resp.Header.Get("Connection")).To(Equal("close"))
			Expect(resp.Header.Get("Cache-Control")).To(ContainSubstring("no-cache"))
			Expect(resp.Body).To(HavePrefix("data: "))

			rpc := parseRPC(resp.Data)
			Expect(rpc.JSONRPC).To(Equal("2.0"))
			Expect(string(rpc.ID)).To(Equal("1"))
			Expect(rpc.Error).To(BeNil())

			var result struct {
				ProtocolVersion string         `json:"protocolVersion"`
				Capabilities    map[string]any `json:"capabilities"`
				ServerInfo      struct {
					Name    string `json:"name"`
					Version string `json:"version"`
				} `json:"serverInfo"`
				Instructions string `json:"instructions"`
			}
			Expect(json.Unmarshal(rpc.Result, &result)).To(Succeed())
			Expect(result.ProtocolVersion).To(Equal("2025-06-18"))
			Expect(result.Capabilities).To(HaveKey("tools"))
			Expect(result.ServerInfo.Name).To(Equal("toolgate-test"))
			Expect(result.ServerInfo.Version).To(Equal("test"))
			Expect(result.Instructions).NotTo(BeEmpty())
		})

		It("assigns a fresh session id to every connection", func() {
			first, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(), body)
			Expect(err).NotTo(HaveOccurred())
			second, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(), body)
			Expect(err).NotTo(HaveOccurred())

			a := first.Header.Get("mcp-session-id")
			b := second.Header.Get("mcp-session-id")
			Expect(a).To(HaveLen(26))
			Expect(b).To(HaveLen(26))
			Expect(a).NotTo(Equal(b))
		})
	})

	// ==================== Tool listing ====================

	Describe("tools/list", func() {
		It("advertises the catalog with schemas", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).To(BeNil())

			var result struct {
				Tools []struct {
					Name        string          `json:"name"`
					Description string          `json:"description"`
					InputSchema json.RawMessage `json:"inputSchema"`
				} `json:"tools"`
			}
			Expect(json.Unmarshal(rpc.Result, &result)).To(Succeed())
			Expect(result.Tools).To(HaveLen(testServer.Catalog.Len()))

			names := make(map[string]bool)
			for _, tool := range result.Tools {
				names[tool.Name] = true
				Expect(tool.Description).NotTo(BeEmpty(), "tool %s", tool.Name)
				Expect(tool.InputSchema).NotTo(BeEmpty(), "tool %s", tool.Name)
			}
			Expect(names).To(HaveKey("ping"))
			Expect(names).To(HaveKey("spawn_object"))
		})
	})

	// ==================== Tool calls ====================

	Describe("tools/call", func() {
		It("runs a tool and returns its envelope as text content", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"ping"}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).To(BeNil())
			text, isError := callContent(rpc.Result)
			Expect(isError).To(BeFalse())
			Expect(text).To(ContainSubstring("pong"))
		})

		It("unwraps object results", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"spawn_object","arguments":{"name":"mcp_probe","type":"CUBE"}}}`)
			Expect(err).NotTo(HaveOccurred())

			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).To(BeNil())
			text, isError := callContent(rpc.Result)
			Expect(isError).To(BeFalse())
			Expect(text).To(MatchJSON(`{"name":"mcp_probe","type":"CUBE"}`))
		})

		It("surfaces tool failures as content, not JSON-RPC errors", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"destroy_object","arguments":{"name":"never_spawned"}}}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(200))

			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).To(BeNil())
			text, isError := callContent(rpc.Result)
			Expect(isError).To(BeTrue())
			Expect(text).To(ContainSubstring("object not found: never_spawned"))
		})

		It("rejects a call without params", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","id":6,"method":"tools/call"}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).NotTo(BeNil())
			Expect(rpc.Error.Code).To(Equal(-32602))
			Expect(rpc.Error.Message).To(Equal("Missing params for tools/call"))
		})

		It("rejects a call without a tool name", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"arguments":{}}}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(400))
			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).NotTo(BeNil())
			Expect(rpc.Error.Code).To(Equal(-32602))
			Expect(rpc.Error.Message).To(Equal("Missing tool name"))
		})
	})

	// ==================== JSON-RPC errors ====================

	Describe("JSON-RPC errors", func() {
		It("replies with a parse error for invalid JSON", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(), "not json")
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(400))
			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).NotTo(BeNil())
			Expect(rpc.Error.Code).To(Equal(-32700))
		})

		It("replies with method-not-found for unknown methods", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","id":8,"method":"resources/list"}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(400))
			rpc := parseRPC(resp.Data)
			Expect(rpc.Error).NotTo(BeNil())
			Expect(rpc.Error.Code).To(Equal(-32601))
			Expect(rpc.Error.Message).To(Equal("Unknown method: resources/list"))
		})
	})

	// ==================== Notifications ====================

	Describe("notifications", func() {
		It("acknowledges notifications without a body", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(),
				`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(202))
			Expect(resp.Body).To(BeEmpty())
		})

		It("treats a body without a method as a notification", func() {
			resp, err := testutil.PostMCP(ctx, testServer.MCPEndpoint(), `{}`)
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(202))
			Expect(resp.Body).To(BeEmpty())
		})
	})

	// ==================== HTTP surface ====================

	Describe("HTTP surface", func() {
		It("acknowledges GET with an empty event stream", func() {
			resp, err := testutil.RequestMCP(ctx, "GET", testServer.MCPEndpoint())
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(200))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Body).To(BeEmpty())
		})

		It("rejects other methods", func() {
			resp, err := testutil.RequestMCP(ctx, "DELETE", testServer.MCPEndpoint())
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(405))
			Expect(resp.Body).To(Equal("Method Not Allowed"))
		})

		It("rejects an unparseable request line", func() {
			resp, err := testutil.SendRawHTTP(testServer.MCPAddr(), "NONSENSE\r\n\r\n")
			Expect(err).NotTo(HaveOccurred())

			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.Body).To(Equal("Invalid request line"))
		})
	})

	// ==================== Connection limits ====================

	Describe("connection limits", func() {
		It("rejects requests that exceed the message size limit", func() {
			small, err := testutil.StartTestServer(
				testutil.WithMaxMessageSize(256),
			)
			Expect(err).NotTo(HaveOccurred())
			defer small.Stop()

			body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/list","pad":"%s"}`,
				strings.Repeat("x", 1024))
			raw := fmt.Sprintf("POST /mcp HTTP/1.1\r\nHost: test\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s",
				len(body), body)

			resp, err := testutil.SendRawHTTP(small.MCPAddr(), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.Body).To(Equal("Request too large"))
		})

		It("closes silent connections after the receive timeout", func() {
			impatient, err := testutil.StartTestServer(
				testutil.WithReceiveTimeout(300 * time.Millisecond),
			)
			Expect(err).NotTo(HaveOccurred())
			defer impatient.Stop()

			conn, err := net.DialTimeout("tcp", impatient.MCPAddr(), 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			n, err := conn.Read(make([]byte, 1))
			Expect(n).To(BeZero())
			Expect(err).To(HaveOccurred(), "server should close without a response")
		})
	})
})
