package turn

import (
	"errors"
	"strings"

	"github.com/liamdty/theramatch/pkg/llm"
)

var (
	// ErrMissingCallID is returned when a call is started without an ID.
	ErrMissingCallID = errors.New("tool call start without id")

	// ErrNoActiveCall is returned when an argument fragment arrives before
	// any call was started in the turn.
	ErrNoActiveCall = errors.New("argument fragment before any tool call started")
)

type draft struct {
	id   string
	name string
	args strings.Builder
}

// Assembler accumulates tool-call fragments for a single turn. Continuation
// fragments carry no call index, so the Assembler tracks the call that is
// currently receiving arguments explicitly in current (-1 until a call is
// started). An Assembler must not be shared between turns or goroutines.
type Assembler struct {
	drafts  []*draft
	current int
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{current: -1}
}

// StartCall opens a new call and makes it the target of AppendArgument.
func (a *Assembler) StartCall(id, name string) error {
	if id == "" {
		return ErrMissingCallID
	}
	a.drafts = append(a.drafts, &draft{id: id, name: name})
	a.current = len(a.drafts) - 1
	return nil
}

// AppendArgument appends text to the argument buffer of the current call.
func (a *Assembler) AppendArgument(text string) error {
	if a.current < 0 {
		return ErrNoActiveCall
	}
	a.drafts[a.current].args.WriteString(text)
	return nil
}

// Add routes a fragment to StartCall or AppendArgument. A start fragment
// that already carries argument text keeps it.
func (a *Assembler) Add(frag llm.ToolCallFragment) error {
	if frag.Starts() {
		if err := a.StartCall(frag.ID, frag.Name); err != nil {
			return err
		}
		if frag.Arguments == "" {
			return nil
		}
	}
	return a.AppendArgument(frag.Arguments)
}

// Len returns the number of calls started so far.
func (a *Assembler) Len() int {
	return len(a.drafts)
}

// Drain returns the assembled calls in the order they were started and
// resets the Assembler.
func (a *Assembler) Drain() []llm.ToolCall {
	calls := make([]llm.ToolCall, 0, len(a.drafts))
	for _, d := range a.drafts {
		calls = append(calls, llm.ToolCall{
			ID:        d.id,
			Name:      d.name,
			Arguments: d.args.String(),
		})
	}
	a.drafts = nil
	a.current = -1
	return calls
}
