package e2e_test

import (
	"encoding/json"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/toolgate/toolgate/citest/testutil"
	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/client"
)

// call runs a tool through the line client and interprets the envelope.
func call(lc *client.LineClient, tool, params string) (string, bool) {
	var raw json.RawMessage
	var err error
	if params == "" {
		raw, err = lc.CallTool(ctx, tool, nil)
	} else {
		raw, err = lc.CallTool(ctx, tool, json.RawMessage(params))
	}
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return client.InterpretResult(raw)
}

var _ = Describe("Scene Workflows", func() {
	var lc *client.LineClient

	BeforeEach(func() {
		lc = client.NewLineClient(testServer.Config.Host, testServer.Server.LinePort())
	})

	AfterEach(func() {
		if lc != nil {
			lc.Close()
		}
	})

	Describe("line protocol client", func() {
		It("connects and reports a healthy daemon", func() {
			Expect(lc.Ping(ctx)).To(Succeed())

			status, err := lc.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Running).To(BeTrue())
			Expect(status.Port).To(Equal(testServer.Server.LinePort()))

			tools, err := lc.Tools(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(tools).To(HaveLen(testServer.Catalog.Len()))
		})

		It("walks an object through its whole lifecycle", func() {
			text, isErr := call(lc, "spawn_object",
				`{"name":"e2e_crate","type":"CUBE","properties":{"mass":12.5}}`)
			Expect(isErr).To(BeFalse())
			Expect(text).To(MatchJSON(`{"name":"e2e_crate","type":"CUBE"}`))

			text, isErr = call(lc, "set_object_property",
				`{"name":"e2e_crate","property":"color","value":"red"}`)
			Expect(isErr).To(BeFalse())
			Expect(text).To(MatchJSON(`{"name":"e2e_crate","property":"color","value":"red"}`))

			text, isErr = call(lc, "get_object_property",
				`{"name":"e2e_crate","property":"color"}`)
			Expect(isErr).To(BeFalse())
			Expect(text).To(MatchJSON(`{"name":"e2e_crate","property":"color","value":"red"}`))

			text, isErr = call(lc, "find_objects_by_name", `{"pattern":"e2e_crate"}`)
			Expect(isErr).To(BeFalse())
			var found struct {
				Count int `json:"count"`
			}
			Expect(json.Unmarshal([]byte(text), &found)).To(Succeed())
			Expect(found.Count).To(Equal(1))

			text, isErr = call(lc, "destroy_object", `{"name":"e2e_crate"}`)
			Expect(isErr).To(BeFalse())
			Expect(text).To(MatchJSON(`{"destroyed":"e2e_crate"}`))

			text, isErr = call(lc, "destroy_object", `{"name":"e2e_crate"}`)
			Expect(isErr).To(BeTrue())
			Expect(text).To(ContainSubstring("object not found: e2e_crate"))
		})

		It("includes the seeded objects in the scene snapshot", func() {
			text, isErr := call(lc, "get_scene_snapshot", "")
			Expect(isErr).To(BeFalse())

			var snapshot struct {
				Objects []struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"objects"`
				Count int `json:"count"`
			}
			Expect(json.Unmarshal([]byte(text), &snapshot)).To(Succeed())
			Expect(snapshot.Count).To(Equal(len(snapshot.Objects)))

			names := make(map[string]string)
			for _, obj := range snapshot.Objects {
				names[obj.Name] = obj.Type
			}
			Expect(names).To(HaveKeyWithValue("floor", "static_mesh"))
			Expect(names).To(HaveKeyWithValue("player_start", "player_start"))
			Expect(names).To(HaveKeyWithValue("sky_light", "light"))
		})
	})

	Describe("MCP client", func() {
		It("initializes, discovers tools and calls them", func() {
			mc, err := client.NewMCPClient(ctx, testServer.MCPEndpoint())
			Expect(err).NotTo(HaveOccurred())
			defer mc.Close()

			name, version := mc.ServerInfo()
			Expect(name).To(Equal("toolgate-test"))
			Expect(version).To(Equal("test"))

			tools, err := mc.Tools(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(tools).To(HaveLen(testServer.Catalog.Len()))

			text, err := mc.CallTool(ctx, "spawn_object",
				json.RawMessage(`{"name":"e2e_mcp_crate","type":"SPHERE"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(MatchJSON(`{"name":"e2e_mcp_crate","type":"SPHERE"}`))
		})

		It("reports tool failures as errors", func() {
			mc, err := client.NewMCPClient(ctx, testServer.MCPEndpoint())
			Expect(err).NotTo(HaveOccurred())
			defer mc.Close()

			_, err = mc.CallTool(ctx, "destroy_object",
				json.RawMessage(`{"name":"e2e_never_spawned"}`))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("object not found: e2e_never_spawned"))
		})
	})

	Describe("cross-protocol consistency", func() {
		It("exposes line-spawned objects over MCP", func() {
			text, isErr := call(lc, "spawn_object", `{"name":"e2e_shared","type":"CUBE"}`)
			Expect(isErr).To(BeFalse(), text)

			mc, err := client.NewMCPClient(ctx, testServer.MCPEndpoint())
			Expect(err).NotTo(HaveOccurred())
			defer mc.Close()

			found, err := mc.CallTool(ctx, "find_objects_by_name",
				json.RawMessage(`{"pattern":"e2e_shared"}`))
			Expect(err).NotTo(HaveOccurred())

			var result struct {
				Count int `json:"count"`
			}
			Expect(json.Unmarshal([]byte(found), &result)).To(Succeed())
			Expect(result.Count).To(Equal(1))
		})
	})

	Describe("catalog hot reload", func() {
		It("picks up tool file changes while serving", func() {
			dir, err := testutil.NewTempDir()
			Expect(err).NotTo(HaveOccurred())
			defer dir.Cleanup()

			_, err = dir.WriteToolFile("tools.json",
				testutil.ToolDef{Name: "alpha", Description: "first tool"})
			Expect(err).NotTo(HaveOccurred())

			pattern := filepath.Join(dir.Path, "*.json")
			initial, err := catalog.LoadGlobs([]string{pattern})
			Expect(err).NotTo(HaveOccurred())
			Expect(initial.Len()).To(Equal(1))

			srv, err := testutil.StartTestServer(testutil.WithCatalog(initial))
			Expect(err).NotTo(HaveOccurred())
			defer srv.Stop()

			watcher, err := catalog.NewWatcher([]string{pattern}, srv.Server.SetCatalog)
			Expect(err).NotTo(HaveOccurred())
			Expect(watcher).NotTo(BeNil())
			watcher.Start()
			defer watcher.Stop()

			rc := client.NewLineClient(srv.Config.Host, srv.Server.LinePort())
			defer rc.Close()

			tools, err := rc.Tools(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(tools).To(HaveLen(1))

			_, err = dir.WriteToolFile("tools.json",
				testutil.ToolDef{Name: "alpha", Description: "first tool"},
				testutil.ToolDef{Name: "beta", Description: "second tool"})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() int {
				listed, err := rc.Tools(ctx)
				if err != nil {
					return -1
				}
				return len(listed)
			}, "10s", "100ms").Should(Equal(2))
		})
	})
})
