package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/liamdty/theramatch/pkg/datastream"
	"github.com/liamdty/theramatch/pkg/llm"
)

// fakeServer replays one scripted data stream per chat request.
type fakeServer struct {
	mu       sync.Mutex
	turns    [][]datastream.Event
	requests []llm.ChatRequest
	ranking  string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	if r.URL.Path == "/api/match-ranking" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.ranking)
		return
	}

	var req llm.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	f.mu.Unlock()

	w.Header().Set(datastream.Header, datastream.HeaderVersion)
	if i >= len(f.turns) {
		return
	}
	for _, ev := range f.turns[i] {
		_, _ = w.Write(datastream.MustEncode(ev))
	}
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeServer) requestAt(i int) llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

var _ = Describe("Chat Command", func() {
	var (
		fake   *fakeServer
		server *httptest.Server
	)

	BeforeEach(func() {
		fake = &fakeServer{}
		server = httptest.NewServer(fake)
		DeferCleanup(server.Close)
	})

	run := func(input string, args ...string) (string, string) {
		var out, errOut bytes.Buffer
		cmd := NewChatCmd()
		cmd.SetIn(strings.NewReader(input))
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetArgs(append([]string{"--url", server.URL}, args...))
		Expect(cmd.ExecuteContext(context.Background())).To(Succeed())
		return out.String(), errOut.String()
	}

	matchResult := map[string]any{
		"match_count":     37,
		"filters_applied": []int{2, 84},
		"message":         "37 matching therapists",
	}

	It("streams text and keeps tool invocations in the history", func() {
		fake.turns = [][]datastream.Event{
			{
				datastream.TextDelta{Text: "Let me check."},
				datastream.ToolCallAnnounce{ToolCallID: "call_1", ToolName: "match_data", Args: json.RawMessage(`{"attributeIds":[2,84]}`)},
				datastream.ToolResult{ToolCallID: "call_1", ToolName: "match_data", Args: json.RawMessage(`{"attributeIds":[2,84]}`), Result: matchResult},
				datastream.TurnComplete{FinishReason: datastream.FinishToolCalls},
			},
			{
				datastream.TextDelta{Text: "I found 37 therapists."},
				datastream.TurnComplete{FinishReason: datastream.FinishStop},
			},
		}

		out, errOut := run("I have anxiety and want a woman\n/quit\n")
		Expect(errOut).To(BeEmpty())
		Expect(out).To(ContainSubstring("Let me check."))
		Expect(out).To(ContainSubstring("[match_data] 37 matching therapists"))
		Expect(out).To(ContainSubstring("I found 37 therapists."))

		Expect(fake.count()).To(Equal(2))

		first := fake.requestAt(0)
		Expect(first.Messages).To(Equal([]llm.ClientMessage{
			{Role: llm.RoleUser, Content: "I have anxiety and want a woman"},
		}))

		second := fake.requestAt(1).Messages
		Expect(second).To(HaveLen(2))
		Expect(second[1].Role).To(Equal(llm.RoleAssistant))
		Expect(second[1].Content).To(Equal("Let me check."))
		Expect(second[1].ToolInvocations).To(HaveLen(1))

		inv := second[1].ToolInvocations[0]
		Expect(inv.State).To(Equal("result"))
		Expect(inv.ToolCallID).To(Equal("call_1"))
		Expect(string(inv.Args)).To(MatchJSON(`{"attributeIds":[2,84]}`))
		Expect(string(inv.Result)).To(MatchJSON(`{"match_count":37,"filters_applied":[2,84],"message":"37 matching therapists"}`))
	})

	It("stops re-posting after max steps", func() {
		toolTurn := []datastream.Event{
			datastream.ToolCallAnnounce{ToolCallID: "call_1", ToolName: "match_data", Args: json.RawMessage(`{}`)},
			datastream.ToolResult{ToolCallID: "call_1", ToolName: "match_data", Args: json.RawMessage(`{}`), Result: matchResult},
			datastream.TurnComplete{FinishReason: datastream.FinishToolCalls},
		}
		fake.turns = [][]datastream.Event{toolTurn, toolTurn, toolTurn}

		run("hello\n", "--max-steps", "2")
		Expect(fake.count()).To(Equal(2))
	})

	It("sends the whole history on the next message", func() {
		fake.turns = [][]datastream.Event{
			{datastream.TextDelta{Text: "Hi!"}, datastream.TurnComplete{FinishReason: datastream.FinishStop}},
			{datastream.TextDelta{Text: "Sure."}, datastream.TurnComplete{FinishReason: datastream.FinishStop}},
		}

		run("hello\nI need help\n")

		Expect(fake.requestAt(1).Messages).To(Equal([]llm.ClientMessage{
			{Role: llm.RoleUser, Content: "hello"},
			{Role: llm.RoleAssistant, Content: "Hi!"},
			{Role: llm.RoleUser, Content: "I need help"},
		}))
	})

	It("forgets the history on /reset", func() {
		fake.turns = [][]datastream.Event{
			{datastream.TextDelta{Text: "Hi!"}, datastream.TurnComplete{FinishReason: datastream.FinishStop}},
			{datastream.TextDelta{Text: "Hello again."}, datastream.TurnComplete{FinishReason: datastream.FinishStop}},
		}

		out, _ := run("hello\n/reset\nhi\n")
		Expect(out).To(ContainSubstring("Started a new conversation."))
		Expect(fake.requestAt(1).Messages).To(Equal([]llm.ClientMessage{
			{Role: llm.RoleUser, Content: "hi"},
		}))
	})

	It("reports a stream that ends without completing and drops the message", func() {
		fake.turns = [][]datastream.Event{
			{datastream.TextDelta{Text: "partial"}},
			{datastream.TextDelta{Text: "ok"}, datastream.TurnComplete{FinishReason: datastream.FinishStop}},
		}

		_, errOut := run("first\nsecond\n")
		Expect(errOut).To(ContainSubstring("stream ended before the turn completed"))
		Expect(fake.requestAt(1).Messages).To(Equal([]llm.ClientMessage{
			{Role: llm.RoleUser, Content: "second"},
		}))
	})

	It("prints ranked profiles", func() {
		fake.ranking = `{"profiles":[
			{"listingName":"Dr. Ada Park","canonicalUrl":"https://example.com/ada","aiRank":1,"aiDescription":"Specializes in anxiety."},
			{"listingName":"Sam Lee","aiRank":2,"aiDescription":"Warm and direct."}
		],"aiAnalysis":{}}`

		out, _ := run("/rank\n")
		Expect(out).To(ContainSubstring("1. Dr. Ada Park\n   Specializes in anxiety.\n   https://example.com/ada\n"))
		Expect(out).To(ContainSubstring("2. Sam Lee\n   Warm and direct.\n"))
	})

	It("prints ranking errors", func() {
		fake.ranking = `{"profiles":[],"aiAnalysis":{"error":"No profiles found"}}`

		out, _ := run("/rank\n")
		Expect(out).To(ContainSubstring("No ranking: No profiles found"))
	})

	It("rejects a non-positive max steps", func() {
		cmd := NewChatCmd()
		cmd.SetIn(strings.NewReader(""))
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--max-steps", "0"})
		Expect(cmd.ExecuteContext(context.Background())).To(MatchError(ContainSubstring("--max-steps")))
	})
})
