package merkle

import (
	"context"
	"errors"
)

// Storer persists and traverses a Merkle DAG. Identical buckets under the
// same parent hash to the same node, so storing a conversation again only
// adds the nodes that differ.
type Storer interface {
	// Put stores a node and reports whether it was new. Storing an existing
	// hash is a no-op.
	Put(ctx context.Context, node *Node) (bool, error)

	// Get retrieves a node by hash. It returns ErrNotFound when absent.
	Get(ctx context.Context, hash string) (*Node, error)

	Has(ctx context.Context, hash string) (bool, error)

	// GetByParent returns the children of parentHash, or the roots when nil.
	GetByParent(ctx context.Context, parentHash *string) ([]*Node, error)

	List(ctx context.Context) ([]*Node, error)
	Roots(ctx context.Context) ([]*Node, error)

	// Leaves returns the nodes without children: the heads of every
	// stored conversation branch.
	Leaves(ctx context.Context) ([]*Node, error)

	// Ancestry returns the path from a node back to its root (node first).
	Ancestry(ctx context.Context, hash string) ([]*Node, error)

	// Descendants returns the path from the root to a node (root first).
	Descendants(ctx context.Context, hash string) ([]*Node, error)

	// Depth returns the number of ancestors of a node (0 for roots).
	Depth(ctx context.Context, hash string) (int, error)

	Close() error
}

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}
	return "node not found: " + e.Hash
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

var errNilNode = errors.New("cannot store nil node")

// getter is the lookup the traversal helpers are built on.
type getter func(ctx context.Context, hash string) (*Node, error)

func ancestry(ctx context.Context, get getter, hash string) ([]*Node, error) {
	var path []*Node
	for current := &hash; current != nil; {
		node, err := get(ctx, *current)
		if err != nil {
			return nil, err
		}
		path = append(path, node)
		current = node.ParentHash
	}
	return path, nil
}

func descendants(ctx context.Context, get getter, hash string) ([]*Node, error) {
	path, err := ancestry(ctx, get, hash)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func depth(ctx context.Context, get getter, hash string) (int, error) {
	path, err := ancestry(ctx, get, hash)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}
