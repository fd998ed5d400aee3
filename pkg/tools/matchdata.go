package tools

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/directory"
)

// MatchDataName is the tool name the system prompt refers to.
const MatchDataName = "match_data"

const matchDataDescription = "Get the number of therapists matching a set of attribute filters. " +
	"Always pass every filter the user has chosen so far, not just the newest one. " +
	"Set limit above 0 only to fetch that many candidate profiles."

// MatchDataArgs are the arguments of the match_data tool.
type MatchDataArgs struct {
	AttributeIDs []int               `json:"attributeIds" jsonschema:"required,description=Directory attribute ids for every filter chosen so far" validate:"required,dive,gt=0"`
	Location     *directory.Location `json:"location,omitempty" jsonschema:"description=Directory location to search. Defaults to Toronto"`
	Limit        int                 `json:"limit,omitempty" jsonschema:"minimum=0,default=0,description=Number of profiles to return. 0 returns only the count" validate:"gte=0,lte=50"`
}

// Searcher is the part of the directory client match_data needs.
type Searcher interface {
	Count(ctx context.Context, attributeIDs []int, location *directory.Location) directory.MatchSummary
	Search(ctx context.Context, req directory.SearchRequest) (*directory.SearchResult, error)
}

// MatchData counts (or lists) directory listings matching attribute filters.
type MatchData struct {
	directory Searcher
	schema    map[string]any
	logger    *zap.Logger
}

// NewMatchData creates the match_data tool.
func NewMatchData(dir Searcher, logger *zap.Logger) *MatchData {
	return &MatchData{
		directory: dir,
		schema:    SchemaFor(&MatchDataArgs{}),
		logger:    logger,
	}
}

func (m *MatchData) Name() string               { return MatchDataName }
func (m *MatchData) Description() string        { return matchDataDescription }
func (m *MatchData) Parameters() map[string]any { return m.schema }

// Call returns a directory.MatchSummary when limit is 0 and the directory's
// raw data object otherwise. Directory failures are reported as an error
// summary, never as an error.
func (m *MatchData) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args MatchDataArgs
	if err := DecodeArgs(raw, &args); err != nil {
		return nil, err
	}

	if args.Limit == 0 {
		return m.directory.Count(ctx, args.AttributeIDs, args.Location), nil
	}

	result, err := m.directory.Search(ctx, directory.SearchRequest{
		AttributeIDs: args.AttributeIDs,
		Location:     args.Location,
		Limit:        args.Limit,
	})
	if err != nil {
		m.logger.Warn("directory search failed", zap.Error(err))
		return directory.FailedSummary(args.AttributeIDs, args.Location, err), nil
	}
	return result.Raw, nil
}
