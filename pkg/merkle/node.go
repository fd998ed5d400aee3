// Package merkle stores chat transcripts as a content-addressed Merkle DAG.
// Each message is a node whose hash covers its content and its parent's
// hash, so conversations sharing a prefix share nodes and diverging replies
// branch from their common ancestor.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/liamdty/theramatch/pkg/llm"
)

// Bucket types.
const (
	BucketMessage    = "message"
	BucketToolResult = "tool_result"
)

// Bucket is the hashed content of a node: one chat message.
type Bucket struct {
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// Meta describes how a node was produced. It is not part of the hash, so the
// first stored copy of a node keeps its metadata.
type Meta struct {
	Model        string           `json:"model,omitempty"`
	FinishReason llm.FinishReason `json:"finish_reason,omitempty"`
	Usage        *llm.Usage       `json:"usage,omitempty"`
}

// Node is a single content-addressed message in the DAG.
type Node struct {
	// Hash is the hex-encoded SHA-256 of the bucket and parent hash.
	Hash string `json:"hash"`

	// ParentHash is nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	Bucket Bucket `json:"bucket"`
	Meta   *Meta  `json:"meta,omitempty"`
}

// NewNode creates a node for bucket under parent (nil for a root).
func NewNode(bucket Bucket, parent *Node) *Node {
	n := &Node{Bucket: bucket}
	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}
	n.Hash = n.computeHash()
	return n
}

// WithMeta attaches metadata and returns n.
func (n *Node) WithMeta(meta Meta) *Node {
	n.Meta = &meta
	return n
}

// Verify reports whether Hash matches the node's bucket and parent.
func (n *Node) Verify() bool {
	return n.Hash != "" && n.Hash == n.computeHash()
}

type hashInput struct {
	Bucket Bucket `json:"bucket"`
	Parent string `json:"parent,omitempty"`
}

func (n *Node) computeHash() string {
	in := hashInput{Bucket: n.Bucket}
	if n.ParentHash != nil {
		in.Parent = *n.ParentHash
	}

	// Struct field order makes the encoding deterministic.
	data, err := json.Marshal(in)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
