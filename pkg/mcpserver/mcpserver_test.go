package mcpserver_test

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/mcpserver"
	"github.com/liamdty/theramatch/pkg/tools"
)

type countTool struct{}

func (countTool) Name() string        { return "count_letters" }
func (countTool) Description() string { return "Counts the letters in a word." }
func (countTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"word": map[string]any{"type": "string"},
		},
		"required": []string{"word"},
	}
}

func (countTool) Call(_ context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Word string `json:"word"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	if in.Word == "" {
		return nil, errors.New("word is required")
	}
	return map[string]int{"letters": len(in.Word)}, nil
}

var _ = Describe("Server", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		session *mcp.ClientSession
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		dispatcher := tools.NewDispatcher(tools.NewRegistry(countTool{}), zap.NewNop())
		server := mcpserver.New(dispatcher, "test", zap.NewNop())

		clientTransport, serverTransport := mcp.NewInMemoryTransports()
		serverSession, err := server.MCP().Connect(ctx, serverTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = serverSession.Close() })

		client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
		session, err = client.Connect(ctx, clientTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = session.Close() })
	})

	It("lists the registry's tools", func() {
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Tools).To(HaveLen(1))
		Expect(res.Tools[0].Name).To(Equal("count_letters"))
		Expect(res.Tools[0].Description).To(Equal("Counts the letters in a word."))
	})

	It("dispatches calls and returns the JSON result as text", func() {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "count_letters",
			Arguments: map[string]any{"word": "therapy"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsError).To(BeFalse())
		Expect(res.Content).To(HaveLen(1))

		text, ok := res.Content[0].(*mcp.TextContent)
		Expect(ok).To(BeTrue())
		Expect(text.Text).To(MatchJSON(`{"letters":7}`))
	})

	It("reports tool failures as error results", func() {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "count_letters",
			Arguments: map[string]any{"word": ""},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.IsError).To(BeTrue())

		text, ok := res.Content[0].(*mcp.TextContent)
		Expect(ok).To(BeTrue())
		Expect(text.Text).To(MatchJSON(`{"message":"word is required","error":true}`))
	})
})
