// Package transcript records chat turns in a merkle.Storer and reads them
// back as linear conversation histories.
package transcript

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/merkle"
)

// Recorder writes completed turns to the DAG.
type Recorder struct {
	storer merkle.Storer
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(storer merkle.Storer, logger *zap.Logger) *Recorder {
	return &Recorder{storer: storer, logger: logger}
}

// Record stores the turn's messages, the assistant reply and its tool
// results as a chain of nodes. A conversation that is resent with one more
// exchange only adds the new nodes.
func (r *Recorder) Record(ctx context.Context, t llm.Turn) error {
	_, err := r.Store(ctx, t)
	return err
}

// Store is Record returning the hash of the turn's last node.
func (r *Recorder) Store(ctx context.Context, t llm.Turn) (string, error) {
	var (
		parent *merkle.Node
		added  int
	)

	put := func(node *merkle.Node) error {
		isNew, err := r.storer.Put(ctx, node)
		if err != nil {
			return fmt.Errorf("storing %s node: %w", node.Bucket.Role, err)
		}
		if isNew {
			added++
		}
		parent = node
		return nil
	}

	for _, m := range t.Messages {
		if err := put(merkle.NewNode(bucketFor(m), parent)); err != nil {
			return "", err
		}
	}

	usage := t.Usage
	reply := merkle.NewNode(bucketFor(t.Response), parent).WithMeta(merkle.Meta{
		Model:        t.Model,
		FinishReason: t.FinishReason,
		Usage:        &usage,
	})
	if err := put(reply); err != nil {
		return "", err
	}

	for _, m := range t.ToolResults {
		if err := put(merkle.NewNode(bucketFor(m), parent)); err != nil {
			return "", err
		}
	}

	r.logger.Debug("recorded turn",
		zap.String("head", parent.Hash[:16]),
		zap.Int("nodes", len(t.Messages)+1+len(t.ToolResults)),
		zap.Int("new_nodes", added),
	)

	return parent.Hash, nil
}

func bucketFor(m llm.Message) merkle.Bucket {
	kind := merkle.BucketMessage
	if m.Role == llm.RoleTool {
		kind = merkle.BucketToolResult
	}
	return merkle.Bucket{
		Type:       kind,
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}
