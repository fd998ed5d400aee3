package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/datastream"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/ranking"
)

const requestIDHeader = "X-Request-Id"

var errNoMessages = errors.New("messages must not be empty")

// handleChat runs one chat turn and streams it back as data stream lines.
// Each line is flushed as soon as it is produced. A client that goes away
// stops the turn and cancels the upstream request.
func (s *Server) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()
	requestID := uuid.NewString()
	logger := s.logger.With(zap.String("request_id", requestID))

	messages, err := decodeMessages(c.Body())
	if err != nil {
		logger.Warn("rejecting chat request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	logger.Debug("received chat request",
		zap.String("protocol", c.Query("protocol", "data")),
		zap.Int("message_count", len(messages)),
	)

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(datastream.Header, datastream.HeaderVersion)
	c.Set(requestIDHeader, requestID)

	orchestrator := s.chat.WithLogger(logger)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		lines := 0
		for line, err := range orchestrator.Stream(ctx, messages) {
			if err != nil {
				logger.Error("chat stream ended early", zap.Error(err))
				return
			}

			if _, err := w.Write(line); err != nil {
				logger.Info("client disconnected", zap.Int("lines", lines), zap.Error(err))
				return
			}
			if err := w.Flush(); err != nil {
				logger.Info("client disconnected", zap.Int("lines", lines), zap.Error(err))
				return
			}
			lines++
		}

		logger.Debug("chat stream finished",
			zap.Int("lines", lines),
			zap.Duration("duration", time.Since(startTime)),
		)
	}))

	return nil
}

// handleMatchRanking ranks the profiles matching the conversation's latest
// filters. Failures are reported inside a 200 response so the client can
// render them alongside an empty list.
func (s *Server) handleMatchRanking(c *fiber.Ctx) error {
	requestID := uuid.NewString()
	c.Set(requestIDHeader, requestID)

	messages, err := decodeMessages(c.Body())
	if err != nil {
		s.logger.Warn("rejecting ranking request",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return c.JSON(ranking.ErrorResponse(err))
	}

	return c.JSON(s.ranker.Rank(c.Context(), messages))
}

func decodeMessages(body []byte) ([]llm.Message, error) {
	var req llm.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("invalid request body")
	}
	if len(req.Messages) == 0 {
		return nil, errNoMessages
	}
	return llm.ConvertClientMessages(req.Messages), nil
}
