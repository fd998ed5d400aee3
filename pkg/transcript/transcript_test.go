package transcript_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/merkle"
	"github.com/liamdty/theramatch/pkg/transcript"
)

var _ = Describe("Recorder", func() {
	var (
		ctx      context.Context
		storer   *merkle.MemoryStorer
		recorder *transcript.Recorder
		first    llm.Turn
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = merkle.NewMemoryStorer()
		recorder = transcript.NewRecorder(storer, zap.NewNop())

		first = llm.Turn{
			Model: "m",
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: "prompt"},
				{Role: llm.RoleUser, Content: "I have anxiety"},
			},
			Response: llm.Message{
				Role:      llm.RoleAssistant,
				Content:   "Let me check.",
				ToolCalls: []llm.ToolCall{{ID: "c1", Name: "match_data", Arguments: `{"attributeIds":[2]}`}},
			},
			ToolResults:  []llm.Message{{Role: llm.RoleTool, ToolCallID: "c1", Content: `{"match_count":40}`}},
			FinishReason: llm.FinishReasonToolCalls,
			Usage:        llm.Usage{PromptTokens: 100, CompletionTokens: 10},
		}
	})

	It("stores the turn as a chain and returns its head", func() {
		head, err := recorder.Store(ctx, first)
		Expect(err).NotTo(HaveOccurred())

		history, err := transcript.BuildHistory(ctx, storer, head)
		Expect(err).NotTo(HaveOccurred())
		Expect(history.HeadHash).To(Equal(head))
		Expect(history.Depth).To(Equal(4))

		roles := []string{}
		for _, m := range history.Messages {
			roles = append(roles, m.Role)
		}
		Expect(roles).To(Equal([]string{"system", "user", "assistant", "tool"}))

		reply := history.Messages[2]
		Expect(reply.Type).To(Equal(merkle.BucketMessage))
		Expect(reply.ToolCalls).To(HaveLen(1))
		Expect(reply.Meta).NotTo(BeNil())
		Expect(reply.Meta.Model).To(Equal("m"))
		Expect(reply.Meta.FinishReason).To(Equal(llm.FinishReasonToolCalls))
		Expect(*reply.Meta.Usage).To(Equal(llm.Usage{PromptTokens: 100, CompletionTokens: 10}))

		Expect(history.Messages[3].Type).To(Equal(merkle.BucketToolResult))
		Expect(history.Messages[3].ToolCallID).To(Equal("c1"))
	})

	It("shares the prefix when the conversation continues", func() {
		_, err := recorder.Store(ctx, first)
		Expect(err).NotTo(HaveOccurred())

		second := llm.Turn{
			Model:    "m",
			Messages: append(append(append([]llm.Message{}, first.Messages...), first.Response), first.ToolResults...),
			Response: llm.Message{Role: llm.RoleAssistant, Content: "Any gender preference?"},
		}
		second.Messages = append(second.Messages, llm.Message{Role: llm.RoleUser, Content: "female"})

		head, err := recorder.Store(ctx, second)
		Expect(err).NotTo(HaveOccurred())

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(6))

		leaves, err := storer.Leaves(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaves).To(HaveLen(1))
		Expect(leaves[0].Hash).To(Equal(head))
	})

	It("branches when the reply differs", func() {
		_, err := recorder.Store(ctx, first)
		Expect(err).NotTo(HaveOccurred())

		retry := first
		retry.Response = llm.Message{Role: llm.RoleAssistant, Content: "Tell me more."}
		retry.ToolResults = nil
		_, err = recorder.Store(ctx, retry)
		Expect(err).NotTo(HaveOccurred())

		histories, err := transcript.Histories(ctx, storer, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(histories).To(HaveLen(2))
	})

	It("converts a history back into chat messages", func() {
		head, err := recorder.Store(ctx, first)
		Expect(err).NotTo(HaveOccurred())

		history, err := transcript.BuildHistory(ctx, storer, head)
		Expect(err).NotTo(HaveOccurred())

		messages := history.ChatMessages()
		Expect(messages).To(HaveLen(4))
		Expect(messages[2]).To(Equal(first.Response))
		Expect(messages[3]).To(Equal(first.ToolResults[0]))
	})

	It("surfaces storage errors", func() {
		failing := transcript.NewRecorder(failingStorer{merkle.NewMemoryStorer()}, zap.NewNop())
		Expect(failing.Record(ctx, first)).To(MatchError(ContainSubstring("disk full")))
	})

	It("fails to build histories for unknown hashes", func() {
		_, err := transcript.BuildHistory(ctx, storer, "missing")
		Expect(merkle.IsNotFound(err)).To(BeTrue())
	})
})

type failingStorer struct {
	*merkle.MemoryStorer
}

func (failingStorer) Put(context.Context, *merkle.Node) (bool, error) {
	return false, errors.New("disk full")
}
