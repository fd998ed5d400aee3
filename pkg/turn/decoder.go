// Package turn reassembles a streamed model turn. Decode classifies each
// upstream chunk into events, and an Assembler rebuilds complete tool calls
// from the ordered fragments those events carry.
package turn

import "github.com/liamdty/theramatch/pkg/llm"

// EventKind classifies a decoded stream event.
type EventKind int

const (
	// EventText carries a text delta, possibly empty.
	EventText EventKind = iota
	// EventFragment carries one tool-call fragment for the Assembler.
	EventFragment
	// EventFlush signals that the turn's tool-call phase is complete.
	EventFlush
	// EventUsage carries the token counters of the final accounting chunk.
	EventUsage
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventFragment:
		return "fragment"
	case EventFlush:
		return "flush"
	case EventUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Event is a single classified unit of a stream chunk.
type Event struct {
	Kind     EventKind
	Text     string
	Fragment llm.ToolCallFragment
	Usage    llm.Usage
}

// Decode classifies one chunk. It keeps no state between chunks.
//
// A chunk without choices is the accounting chunk and yields a single
// EventUsage. Otherwise every choice is visited in order: a "stop" finish
// yields nothing, a "tool_calls" finish yields EventFlush, a delta with tool
// calls yields one EventFragment per fragment, and anything else yields an
// EventText with the delta's content.
func Decode(chunk llm.StreamChunk) []Event {
	if len(chunk.Choices) == 0 {
		var usage llm.Usage
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		return []Event{{Kind: EventUsage, Usage: usage}}
	}

	var events []Event
	for _, choice := range chunk.Choices {
		switch {
		case choice.FinishReason == llm.FinishReasonStop:
			continue
		case choice.FinishReason == llm.FinishReasonToolCalls:
			events = append(events, Event{Kind: EventFlush})
		case choice.Delta != nil && len(choice.Delta.ToolCalls) > 0:
			for _, frag := range choice.Delta.ToolCalls {
				events = append(events, Event{Kind: EventFragment, Fragment: frag})
			}
		default:
			var text string
			if choice.Delta != nil {
				text = choice.Delta.Content
			}
			events = append(events, Event{Kind: EventText, Text: text})
		}
	}
	return events
}
