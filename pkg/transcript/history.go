package transcript

import (
	"context"

	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/merkle"
)

// History is the conversation leading up to, and including, one node.
type History struct {
	// Messages are oldest first.
	Messages []HistoryMessage `json:"messages"`
	HeadHash string           `json:"head_hash"`
	Depth    int              `json:"depth"`
}

// HistoryMessage is one node of a History.
type HistoryMessage struct {
	Hash       string         `json:"hash"`
	ParentHash *string        `json:"parent_hash,omitempty"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Meta       *merkle.Meta   `json:"meta,omitempty"`
}

// BuildHistory returns the history ending at hash.
func BuildHistory(ctx context.Context, storer merkle.Storer, hash string) (*History, error) {
	path, err := storer.Descendants(ctx, hash)
	if err != nil {
		return nil, err
	}

	messages := make([]HistoryMessage, len(path))
	for i, node := range path {
		messages[i] = HistoryMessage{
			Hash:       node.Hash,
			ParentHash: node.ParentHash,
			Type:       node.Bucket.Type,
			Role:       node.Bucket.Role,
			Content:    node.Bucket.Content,
			ToolCalls:  node.Bucket.ToolCalls,
			ToolCallID: node.Bucket.ToolCallID,
			Meta:       node.Meta,
		}
	}

	return &History{
		Messages: messages,
		HeadHash: hash,
		Depth:    len(messages),
	}, nil
}

// Histories returns one history per leaf of the DAG. Leaves whose history
// cannot be built are reported through skip and left out.
func Histories(ctx context.Context, storer merkle.Storer, skip func(hash string, err error)) ([]History, error) {
	leaves, err := storer.Leaves(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]History, 0, len(leaves))
	for _, leaf := range leaves {
		h, err := BuildHistory(ctx, storer, leaf.Hash)
		if err != nil {
			if skip != nil {
				skip(leaf.Hash, err)
			}
			continue
		}
		out = append(out, *h)
	}
	return out, nil
}

// ChatMessages converts a history back into chat messages, so a stored
// conversation can be resumed.
func (h *History) ChatMessages() []llm.Message {
	out := make([]llm.Message, len(h.Messages))
	for i, m := range h.Messages {
		out[i] = llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		}
	}
	return out
}
