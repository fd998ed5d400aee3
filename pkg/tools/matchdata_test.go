package tools_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/directory"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/tools"
)

type fakeDirectory struct {
	countIDs   []int
	countLoc   *directory.Location
	searchReq  *directory.SearchRequest
	searchErr  error
	searchData string
}

func (f *fakeDirectory) Count(_ context.Context, ids []int, loc *directory.Location) directory.MatchSummary {
	f.countIDs = ids
	f.countLoc = loc
	return directory.MatchSummary{
		MatchCount:     12,
		FiltersApplied: ids,
		Location:       directory.DefaultLocation,
		Message:        "12 matching therapists",
	}
}

func (f *fakeDirectory) Search(_ context.Context, req directory.SearchRequest) (*directory.SearchResult, error) {
	f.searchReq = &req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &directory.SearchResult{Total: 1, Raw: json.RawMessage(f.searchData)}, nil
}

var _ = Describe("MatchData", func() {
	var (
		dir        *fakeDirectory
		matchData  *tools.MatchData
		dispatcher *tools.Dispatcher
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = &fakeDirectory{searchData: `{"total":1,"profiles":[{"id":5}]}`}
		matchData = tools.NewMatchData(dir, zap.NewNop())
		dispatcher = tools.NewDispatcher(tools.NewRegistry(matchData), zap.NewNop())
	})

	It("advertises a schema reflected from its arguments", func() {
		schema := matchData.Parameters()

		Expect(schema).To(HaveKeyWithValue("type", "object"))
		Expect(schema).NotTo(HaveKey("$schema"))
		Expect(schema["required"]).To(ConsistOf("attributeIds"))

		props, ok := schema["properties"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(props).To(HaveKey("attributeIds"))
		Expect(props).To(HaveKey("location"))
		Expect(props).To(HaveKey("limit"))

		location, ok := props["location"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(location["properties"]).To(HaveKey("regionCode"))
	})

	It("returns the match count when limit is omitted", func() {
		result := dispatcher.Dispatch(ctx, llm.ToolCall{
			ID: "c1", Name: "match_data", Arguments: `{"attributeIds":[2,84]}`,
		})

		Expect(result.IsError).To(BeFalse())
		Expect(dir.countIDs).To(Equal([]int{2, 84}))
		Expect(dir.countLoc).To(BeNil())
		Expect(result.JSON()).To(MatchJSON(`{
			"match_count": 12,
			"filters_applied": [2, 84],
			"location": {"id": 68684, "type": "City", "regionCode": "ON"},
			"message": "12 matching therapists"
		}`))
	})

	It("passes a supplied location through", func() {
		dispatcher.Dispatch(ctx, llm.ToolCall{
			ID: "c1", Name: "match_data",
			Arguments: `{"attributeIds":[2],"location":{"id":1,"type":"City","regionCode":"BC"}}`,
		})

		Expect(dir.countLoc).To(Equal(&directory.Location{ID: 1, Type: "City", RegionCode: "BC"}))
	})

	It("ignores unknown argument fields", func() {
		result := dispatcher.Dispatch(ctx, llm.ToolCall{
			ID: "c1", Name: "match_data", Arguments: `{"attributeIds":[2],"mood":"hopeful"}`,
		})
		Expect(result.IsError).To(BeFalse())
	})

	It("returns the raw directory data when a limit is given", func() {
		result := dispatcher.Dispatch(ctx, llm.ToolCall{
			ID: "c1", Name: "match_data", Arguments: `{"attributeIds":[2],"limit":3}`,
		})

		Expect(result.IsError).To(BeFalse())
		Expect(dir.searchReq.Limit).To(Equal(3))
		Expect(result.JSON()).To(MatchJSON(`{"total":1,"profiles":[{"id":5}]}`))
	})

	It("reports profile search failures as a zero-count error summary", func() {
		dir.searchErr = errors.New("connection refused")
		result := dispatcher.Dispatch(ctx, llm.ToolCall{
			ID: "c1", Name: "match_data", Arguments: `{"attributeIds":[2],"limit":3}`,
		})

		Expect(result.IsError).To(BeFalse())
		summary, ok := result.Value.(directory.MatchSummary)
		Expect(ok).To(BeTrue())
		Expect(summary.MatchCount).To(Equal(0))
		Expect(summary.Error).To(BeTrue())
		Expect(summary.Message).To(ContainSubstring("connection refused"))
	})

	DescribeTable("rejects invalid arguments",
		func(args string) {
			result := dispatcher.Dispatch(ctx, llm.ToolCall{ID: "c1", Name: "match_data", Arguments: args})
			Expect(result.IsError).To(BeTrue())
			Expect(result.JSON()).To(ContainSubstring(`"error":true`))
			Expect(dir.countIDs).To(BeNil())
		},
		Entry("missing attributeIds", `{}`),
		Entry("negative limit", `{"attributeIds":[2],"limit":-1}`),
		Entry("non-positive id", `{"attributeIds":[0]}`),
		Entry("wrong type", `{"attributeIds":"anxiety"}`),
	)
})
