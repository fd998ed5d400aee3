package ranking

import (
	"encoding/json"
	"errors"

	"github.com/liamdty/theramatch/pkg/directory"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/tools"
)

// ErrNoFilters is returned when the conversation has no match_data call to
// take filters from.
var ErrNoFilters = errors.New("no filters found in conversation")

// Filters are the search arguments of a match_data call.
type Filters struct {
	AttributeIDs []int               `json:"attributeIds"`
	Location     *directory.Location `json:"location,omitempty"`
}

// ExtractFilters returns the arguments of the most recent match_data call in
// the conversation. Calls whose arguments do not parse are skipped.
func ExtractFilters(messages []llm.Message) (Filters, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != llm.RoleAssistant {
			continue
		}
		for j := len(m.ToolCalls) - 1; j >= 0; j-- {
			call := m.ToolCalls[j]
			if call.Name != tools.MatchDataName {
				continue
			}
			var f Filters
			if err := json.Unmarshal([]byte(call.Arguments), &f); err != nil || f.AttributeIDs == nil {
				continue
			}
			return f, nil
		}
	}
	return Filters{}, ErrNoFilters
}
