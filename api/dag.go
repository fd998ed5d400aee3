package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/merkle"
	"github.com/liamdty/theramatch/pkg/transcript"
)

// handleDAGStats returns node, root and leaf counts of the transcript DAG.
func (s *Server) handleDAGStats(c *fiber.Ctx) error {
	ctx := c.Context()

	nodes, err := s.storer.List(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list nodes"})
	}

	roots, err := s.storer.Roots(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get roots"})
	}

	leaves, err := s.storer.Leaves(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	return c.JSON(map[string]any{
		"total_nodes": len(nodes),
		"root_count":  len(roots),
		"leaf_count":  len(leaves),
	})
}

func (s *Server) handleGetNode(c *fiber.Ctx) error {
	node, err := s.storer.Get(c.Context(), c.Params("hash"))
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(node)
}

// handleListHistories returns one history per stored conversation branch.
func (s *Server) handleListHistories(c *fiber.Ctx) error {
	histories, err := transcript.Histories(c.Context(), s.storer, func(hash string, err error) {
		s.logger.Warn("failed to build history for leaf", zap.String("hash", hash), zap.Error(err))
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	return c.JSON(map[string]any{
		"count":     len(histories),
		"histories": histories,
	})
}

// handleGetHistory returns the conversation leading up to a node, oldest
// message first.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	history, err := transcript.BuildHistory(c.Context(), s.storer, c.Params("hash"))
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(history)
}

func notFoundOr500(c *fiber.Ctx, err error) error {
	if merkle.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: err.Error()})
}

// PutNodesResponse reports the outcome of a node upload.
type PutNodesResponse struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// handlePutNodes stores uploaded nodes. Nodes whose hash does not match
// their content are counted as errors and skipped.
func (s *Server) handlePutNodes(c *fiber.Ctx) error {
	var nodes []*merkle.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	var resp PutNodesResponse
	for _, n := range nodes {
		if n == nil || !n.Verify() {
			resp.Errors++
			continue
		}

		isNew, err := s.storer.Put(c.Context(), n)
		if err != nil {
			s.logger.Warn("failed to store pushed node", zap.String("hash", n.Hash), zap.Error(err))
			resp.Errors++
			continue
		}
		if isNew {
			resp.New++
		} else {
			resp.Duplicate++
		}
	}

	s.logger.Info("received nodes",
		zap.Int("new", resp.New),
		zap.Int("duplicate", resp.Duplicate),
		zap.Int("errors", resp.Errors),
	)
	return c.JSON(resp)
}
