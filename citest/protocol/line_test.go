package protocol_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/toolgate/toolgate/citest/testutil"
	"github.com/toolgate/toolgate/internal/dispatch"
)

// decode unwraps a raw frame into a generic map for field assertions.
func decode(raw json.RawMessage) map[string]any {
	var m map[string]any
	ExpectWithOffset(1, json.Unmarshal(raw, &m)).To(Succeed())
	return m
}

var _ = Describe("Line Protocol", func() {
	var conn *testutil.LineConn

	BeforeEach(func() {
		var err error
		conn, err = testutil.DialLine(testServer.LineAddr())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if conn != nil {
			conn.Close()
		}
	})

	// ==================== Ping ====================

	Describe("ping", func() {
		It("replies with pong", func() {
			reply, err := conn.Roundtrip(map[string]string{"type": "ping"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["type"]).To(Equal("pong"))
		})

		It("accepts CRLF line endings", func() {
			Expect(conn.SendBytes([]byte("{\"type\":\"ping\"}\r\n"))).To(Succeed())
			reply, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["type"]).To(Equal("pong"))
		})
	})

	// ==================== Status ====================

	Describe("status", func() {
		It("reports the running server", func() {
			reply, err := conn.Roundtrip(map[string]string{"type": "status"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			status := decode(reply)
			Expect(status["type"]).To(Equal("status"))
			Expect(status["running"]).To(BeTrue())
			Expect(status["host"]).To(Equal(testServer.Config.Host))
			Expect(status["port"]).To(BeNumerically("==", testServer.Server.LinePort()))
			Expect(status["heartbeat_interval"]).To(BeNumerically("~", 0.2, 0.001))
			Expect(status["uptime_seconds"]).To(BeNumerically(">=", 0))
		})
	})

	// ==================== Tool listing ====================

	Describe("tools", func() {
		It("lists every catalog entry with name and description", func() {
			reply, err := conn.Roundtrip(map[string]string{"type": "tools"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var listing struct {
				Type  string `json:"type"`
				Tools []struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				} `json:"tools"`
			}
			Expect(json.Unmarshal(reply, &listing)).To(Succeed())
			Expect(listing.Type).To(Equal("tools"))
			Expect(listing.Tools).To(HaveLen(testServer.Catalog.Len()))
			for _, tool := range listing.Tools {
				Expect(tool.Name).NotTo(BeEmpty())
				Expect(tool.Description).NotTo(BeEmpty())
			}
		})
	})

	// ==================== Tool calls ====================

	Describe("call_tool", func() {
		It("executes a tool and returns the result envelope", func() {
			reply, err := conn.Roundtrip(map[string]any{
				"type": "call_tool",
				"tool": "ping",
			}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			envelope := decode(reply)
			Expect(envelope["status"]).To(Equal("success"))
			Expect(envelope["result"]).To(Equal("pong"))
		})

		It("passes params through to the tool", func() {
			reply, err := conn.Roundtrip(map[string]any{
				"type":   "call_tool",
				"tool":   "spawn_object",
				"params": map[string]string{"name": "line_probe", "type": "CUBE"},
			}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			envelope := decode(reply)
			Expect(envelope["status"]).To(Equal("success"))
			result, ok := envelope["result"].(map[string]any)
			Expect(ok).To(BeTrue(), "result should be an object")
			Expect(result["name"]).To(Equal("line_probe"))
			Expect(result["type"]).To(Equal("CUBE"))
		})

		It("rejects a call without a tool name", func() {
			reply, err := conn.Roundtrip(map[string]any{"type": "call_tool"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["error"]).To(Equal("Missing tool name"))
		})

		It("returns an error envelope with a suggestion for unknown commands", func() {
			reply, err := conn.Roundtrip(map[string]any{
				"type": "call_tool",
				"tool": "pingg",
			}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			envelope := decode(reply)
			Expect(envelope["status"]).To(Equal("error"))
			Expect(envelope["error"]).To(ContainSubstring("Unknown command: pingg"))
			Expect(envelope["error"]).To(ContainSubstring(`did you mean "ping"?`))
		})
	})

	// ==================== Malformed input ====================

	Describe("malformed input", func() {
		It("rejects lines that are not JSON", func() {
			Expect(conn.SendRaw("not json")).To(Succeed())
			reply, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["error"]).To(Equal("Invalid JSON"))
		})

		It("treats an empty line as invalid JSON", func() {
			Expect(conn.SendBytes([]byte("\n"))).To(Succeed())
			reply, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["error"]).To(Equal("Invalid JSON"))
		})

		It("rejects messages without a type", func() {
			Expect(conn.SendRaw("{}")).To(Succeed())
			reply, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["error"]).To(Equal("Missing message type"))
		})

		It("rejects unknown message types", func() {
			reply, err := conn.Roundtrip(map[string]string{"type": "bogus"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["error"]).To(Equal("Unknown message type: bogus"))
		})

		It("keeps the connection alive after an error", func() {
			Expect(conn.SendRaw("not json")).To(Succeed())
			_, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())

			reply, err := conn.Roundtrip(map[string]string{"type": "ping"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["type"]).To(Equal("pong"))
		})
	})

	// ==================== Framing ====================

	Describe("framing", func() {
		It("assembles messages from partial writes", func() {
			Expect(conn.SendBytes([]byte(`{"type":`))).To(Succeed())
			time.Sleep(50 * time.Millisecond)
			Expect(conn.SendBytes([]byte(`"ping"}` + "\n"))).To(Succeed())

			reply, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["type"]).To(Equal("pong"))
		})

		It("answers batched messages in order", func() {
			batch := strings.Join([]string{
				`{"type":"ping"}`,
				`{"type":"status"}`,
				`{"type":"ping"}`,
			}, "\n") + "\n"
			Expect(conn.SendBytes([]byte(batch))).To(Succeed())

			first, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(first)["type"]).To(Equal("pong"))

			second, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(second)["type"]).To(Equal("status"))

			third, err := conn.ReadReply(2 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(third)["type"]).To(Equal("pong"))
		})
	})

	// ==================== Heartbeats ====================

	Describe("heartbeats", func() {
		It("pushes periodic heartbeat frames", func() {
			deadline := time.Now().Add(3 * time.Second)
			var heartbeat map[string]any
			for time.Now().Before(deadline) {
				frame, err := conn.ReadFrame(time.Until(deadline))
				Expect(err).NotTo(HaveOccurred())
				if testutil.IsHeartbeat(frame) {
					heartbeat = decode(frame)
					break
				}
			}
			Expect(heartbeat).NotTo(BeNil(), "no heartbeat within 3s at a 200ms interval")
			Expect(heartbeat["timestamp"]).To(BeNumerically(">", 0))
		})
	})

	// ==================== Connection limits ====================

	Describe("message size limit", func() {
		It("drops the connection without replying when a line is too long", func() {
			small, err := testutil.StartTestServer(
				testutil.WithMaxMessageSize(256),
			)
			Expect(err).NotTo(HaveOccurred())
			defer small.Stop()

			oversized, err := testutil.DialLine(small.LineAddr())
			Expect(err).NotTo(HaveOccurred())
			defer oversized.Close()

			padding := strings.Repeat("x", 512)
			msg := fmt.Sprintf(`{"type":"ping","pad":"%s"}`, padding)
			Expect(oversized.SendRaw(msg)).To(Succeed())

			_, err = oversized.ReadFrame(2 * time.Second)
			Expect(err).To(HaveOccurred(), "connection should be closed with no reply")
		})
	})

	// ==================== Concurrent connections ====================

	Describe("concurrent connections", func() {
		It("serves multiple clients against shared state", func() {
			other, err := testutil.DialLine(testServer.LineAddr())
			Expect(err).NotTo(HaveOccurred())
			defer other.Close()

			_, err = conn.Roundtrip(map[string]any{
				"type":   "call_tool",
				"tool":   "spawn_object",
				"params": map[string]string{"name": "shared_probe", "type": "SPHERE"},
			}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			reply, err := other.Roundtrip(map[string]any{
				"type":   "call_tool",
				"tool":   "find_objects_by_name",
				"params": map[string]string{"pattern": "shared_probe"},
			}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			envelope := decode(reply)
			Expect(envelope["status"]).To(Equal("success"))
			result, ok := envelope["result"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(result["count"]).To(BeNumerically("==", 1))
		})
	})

	// ==================== Executor mapping ====================

	Describe("executor payloads", func() {
		It("forwards executor JSON verbatim and wraps executor errors", func() {
			canned, err := testutil.StartTestServer(
				testutil.WithExecutor(dispatch.ExecutorFunc(
					func(ctx context.Context, tool string, params json.RawMessage) (json.RawMessage, error) {
						if tool == "explode" {
							return nil, fmt.Errorf("boom")
						}
						return json.RawMessage(`{"custom":[1,2,3]}`), nil
					},
				)),
			)
			Expect(err).NotTo(HaveOccurred())
			defer canned.Stop()

			cc, err := testutil.DialLine(canned.LineAddr())
			Expect(err).NotTo(HaveOccurred())
			defer cc.Close()

			reply, err := cc.Roundtrip(map[string]any{"type": "call_tool", "tool": "anything"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(reply)).To(MatchJSON(`{"custom":[1,2,3]}`))

			reply, err = cc.Roundtrip(map[string]any{"type": "call_tool", "tool": "explode"}, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(decode(reply)["error"]).To(Equal("boom"))
		})
	})
})
