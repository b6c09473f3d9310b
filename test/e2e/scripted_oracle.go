package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/eidetic-ai/eidetic/pkg/llm"
)

// OracleScriptEntry defines a single scripted model response.
type OracleScriptEntry struct {
	// Response content (exactly one should be set)
	Text  string // returned by Chat; ChatJSON returns it as raw JSON
	Error error  // returned instead of content

	// Test control
	WaitCh  <-chan struct{} // block the call until closed, then respond
	OnBlock chan<- struct{} // notified when the call enters its blocking path
}

// ScriptedOracle implements llm.Oracle with a fixed response script. Each
// role gets its own oracle, so entries are consumed strictly in call order
// and a test reads as the conversation it stages.
type ScriptedOracle struct {
	role string

	mu       sync.Mutex
	entries  []OracleScriptEntry
	index    int
	captured []llm.ChatRequest
}

// NewScriptedOracle creates an empty oracle. role only labels exhaustion
// errors so a failing test names the agent that ran dry.
func NewScriptedOracle(role string) *ScriptedOracle {
	return &ScriptedOracle{role: role}
}

// Add appends a plain response entry.
func (o *ScriptedOracle) Add(text string) *ScriptedOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, OracleScriptEntry{Text: text})
	return o
}

// AddError appends an entry that fails the call.
func (o *ScriptedOracle) AddError(err error) *ScriptedOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, OracleScriptEntry{Error: err})
	return o
}

// AddEntry appends a fully specified entry.
func (o *ScriptedOracle) AddEntry(entry OracleScriptEntry) *ScriptedOracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entry)
	return o
}

// Chat implements llm.Oracle.
func (o *ScriptedOracle) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	o.mu.Lock()
	o.captured = append(o.captured, req)
	if o.index >= len(o.entries) {
		idx, total := o.index, len(o.entries)
		o.mu.Unlock()
		return "", fmt.Errorf("ScriptedOracle[%s]: script exhausted (%d/%d entries consumed)", o.role, idx, total)
	}
	entry := o.entries[o.index]
	o.index++
	o.mu.Unlock()

	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if entry.Error != nil {
		return "", entry.Error
	}
	return entry.Text, nil
}

// ChatJSON implements llm.Oracle. The entry text is handed back verbatim, so
// scripts carry the exact JSON the agents will decode.
func (o *ScriptedOracle) ChatJSON(ctx context.Context, req llm.ChatRequest) (json.RawMessage, error) {
	text, err := o.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

// CallCount returns how many calls reached this oracle.
func (o *ScriptedOracle) CallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.captured)
}

// CapturedRequests returns a copy of every request seen so far.
func (o *ScriptedOracle) CapturedRequests() []llm.ChatRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]llm.ChatRequest, len(o.captured))
	copy(out, o.captured)
	return out
}
