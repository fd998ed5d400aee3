package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/liamdty/theramatch/pkg/datastream"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/ranking"
)

// client talks to a running server and keeps the conversation history the
// way a browser chat client would: tool round-trips are stored inline on
// assistant messages as tool invocations.
type client struct {
	baseURL    string
	httpClient *http.Client
	maxSteps   int
	out        io.Writer

	history []llm.ClientMessage
}

// stepResult is what one streamed turn produced.
type stepResult struct {
	message      llm.ClientMessage
	finishReason string
	results      int
}

// send posts a user message and streams the reply to out. While the model
// stops to call tools, the conversation is re-posted so it can answer with
// the results, up to maxSteps turns in total.
func (c *client) send(ctx context.Context, text string) error {
	start := len(c.history)
	c.history = append(c.history, llm.ClientMessage{Role: llm.RoleUser, Content: text})

	for step := 1; ; step++ {
		res, err := c.step(ctx)
		if err != nil {
			if step == 1 {
				c.history = c.history[:start]
			}
			return err
		}
		c.history = append(c.history, res.message)

		if res.finishReason != datastream.FinishToolCalls || res.results == 0 || step >= c.maxSteps {
			break
		}
	}

	fmt.Fprintln(c.out)
	return nil
}

func (c *client) step(ctx context.Context) (*stepResult, error) {
	resp, err := c.post(ctx, "/api/chat", c.history)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &stepResult{message: llm.ClientMessage{Role: llm.RoleAssistant}}
	var content strings.Builder
	byID := map[string]int{}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			ev, perr := datastream.Parse(line)
			if perr != nil {
				return nil, fmt.Errorf("bad line from server: %w", perr)
			}
			c.handle(ev, res, &content, byID)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}
	}

	if res.finishReason == "" {
		return nil, errors.New("stream ended before the turn completed")
	}
	res.message.Content = content.String()
	return res, nil
}

func (c *client) handle(ev datastream.Event, res *stepResult, content *strings.Builder, byID map[string]int) {
	switch ev := ev.(type) {
	case datastream.TextDelta:
		content.WriteString(ev.Text)
		fmt.Fprint(c.out, ev.Text)

	case datastream.ToolCallAnnounce:
		byID[ev.ToolCallID] = len(res.message.ToolInvocations)
		res.message.ToolInvocations = append(res.message.ToolInvocations, llm.ToolInvocation{
			State:      "call",
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			Args:       ev.Args,
		})

	case datastream.ToolResult:
		raw, _ := json.Marshal(ev.Result)
		inv := llm.ToolInvocation{
			State:      "result",
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			Args:       ev.Args,
			Result:     raw,
		}
		if i, ok := byID[ev.ToolCallID]; ok {
			res.message.ToolInvocations[i] = inv
		} else {
			res.message.ToolInvocations = append(res.message.ToolInvocations, inv)
		}
		res.results++
		fmt.Fprintf(c.out, "\n  [%s] %s\n", ev.ToolName, describeResult(ev.Result))

	case datastream.TurnComplete:
		res.finishReason = ev.FinishReason
	}
}

// rank asks the server to rank the profiles matching the conversation so
// far and prints them.
func (c *client) rank(ctx context.Context) error {
	resp, err := c.post(ctx, "/api/match-ranking", c.history)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body ranking.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode ranking: %w", err)
	}

	if body.AIAnalysis.Error != "" {
		fmt.Fprintf(c.out, "No ranking: %s\n", body.AIAnalysis.Error)
		return nil
	}

	for _, p := range body.Profiles {
		fmt.Fprintf(c.out, "%v. %s\n", p["aiRank"], p.Name())
		if d, ok := p["aiDescription"].(string); ok && d != "" {
			fmt.Fprintf(c.out, "   %s\n", d)
		}
		if u := p.CanonicalURL(); u != "" {
			fmt.Fprintf(c.out, "   %s\n", u)
		}
	}
	return nil
}

func (c *client) reset() {
	c.history = nil
}

func (c *client) post(ctx context.Context, path string, messages []llm.ClientMessage) (*http.Response, error) {
	body, err := json.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach server: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var e llm.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return resp, nil
}

// describeResult prints a tool result's message when it has one.
func describeResult(result any) string {
	if m, ok := result.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg
		}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result)
	}
	return string(b)
}
