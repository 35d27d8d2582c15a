package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cobot-run/cobot/internal/channels"
	"github.com/cobot-run/cobot/internal/kernel"
	"github.com/cobot-run/cobot/internal/llm"
	"github.com/cobot-run/cobot/internal/messages"
)

// fakeProvider returns a scripted sequence of responses, one per call.
type fakeProvider struct {
	responses []*llm.Response
	err       error
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSpec, model string, maxTokens int) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return resp, nil
}

// fakeTool always returns a fixed result and records invocation args.
type fakeTool struct {
	name     string
	lastArgs map[string]any
	result   *llm.ToolResult
	err      error
}

func (t *fakeTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: t.name, Description: "test tool"}
}

func (t *fakeTool) Execute(ctx context.Context, args map[string]any) (*llm.ToolResult, error) {
	t.lastArgs = args
	if t.err != nil {
		return nil, t.err
	}
	return t.result, nil
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, tools map[string]llm.Tool) *Orchestrator {
	t.Helper()
	k := kernel.New()
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	return New(k, provider, tools, Options{PollInterval: time.Millisecond})
}

func TestRespondReturnsPlainTextOnNoToolCalls(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.Response{{Content: "hello there"}}}
	o := newTestOrchestrator(t, provider, nil)

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "c1", ID: "m1", Content: "hi"}
	got := o.Respond(context.Background(), msg)
	if got != "hello there" {
		t.Fatalf("expected %q, got %q", "hello there", got)
	}
}

func TestRespondSubstitutesPlaceholderForEmptyResponse(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.Response{{Content: ""}}}
	o := newTestOrchestrator(t, provider, nil)

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "c1", ID: "m1", Content: "hi"}
	got := o.Respond(context.Background(), msg)
	if got != "(no response)" {
		t.Fatalf("expected placeholder, got %q", got)
	}
}

func TestRespondSurfacesLLMErrorAsText(t *testing.T) {
	provider := &fakeProvider{err: errTest{}}
	o := newTestOrchestrator(t, provider, nil)

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "c1", ID: "m1", Content: "hi"}
	got := o.Respond(context.Background(), msg)
	if got == "" || got[:6] != "Error:" {
		t.Fatalf("expected an Error:-prefixed string, got %q", got)
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }

func TestRespondRunsToolRoundThenReturnsFinalText(t *testing.T) {
	tool := &fakeTool{name: "lookup", result: &llm.ToolResult{Content: "42"}}
	toolCallResp := &llm.Response{
		ToolCalls: []llm.ToolCall{{ID: "tc1", Name: "lookup", Arguments: `{"q":"answer"}`}},
	}
	finalResp := &llm.Response{Content: "the answer is 42"}
	provider := &fakeProvider{responses: []*llm.Response{toolCallResp, finalResp}}
	o := newTestOrchestrator(t, provider, map[string]llm.Tool{"lookup": tool})

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "c1", ID: "m1", Content: "what is it"}
	got := o.Respond(context.Background(), msg)

	if got != "the answer is 42" {
		t.Fatalf("expected final text, got %q", got)
	}
	if tool.lastArgs["q"] != "answer" {
		t.Fatalf("expected tool to receive normalized arguments, got %v", tool.lastArgs)
	}
}

func TestRespondStopsAtMaxToolRounds(t *testing.T) {
	tool := &fakeTool{name: "loop", result: &llm.ToolResult{Content: "again"}}
	loopResp := &llm.Response{
		ToolCalls: []llm.ToolCall{{ID: "tc", Name: "loop", Arguments: map[string]any{}}},
	}
	responses := make([]*llm.Response, maxToolRounds)
	for i := range responses {
		responses[i] = loopResp
	}
	provider := &fakeProvider{responses: responses}
	o := newTestOrchestrator(t, provider, map[string]llm.Tool{"loop": tool})

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "c1", ID: "m1", Content: "go forever"}
	got := o.Respond(context.Background(), msg)

	if got != "(reached maximum tool rounds without a final response)" {
		t.Fatalf("expected max-rounds message, got %q", got)
	}
}

func TestHandleMessageDedupsRepeatedDelivery(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.Response{{Content: "ack"}}}
	o := newTestOrchestrator(t, provider, nil)

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "c1", ID: "dup1", Content: "hi"}
	o.HandleMessage(context.Background(), msg)
	callsAfterFirst := provider.calls

	o.HandleMessage(context.Background(), msg)
	if provider.calls != callsAfterFirst {
		t.Fatalf("expected second delivery of the same id to be deduped and never reach the LLM, calls went from %d to %d", callsAfterFirst, provider.calls)
	}
}

// fakeSession is a minimal channels.Session + kernel.Plugin double used to
// verify HandleMessage's send path without a real adapter.
type fakeSession struct {
	channelType string
	sent        []*messages.Outgoing
}

func (f *fakeSession) Meta() kernel.Meta {
	return kernel.Meta{ID: "fake-" + f.channelType, Extends: []string{channels.ExtensionPoint}}
}
func (f *fakeSession) Configure(ctx context.Context, cfg map[string]any) error { return nil }
func (f *fakeSession) Start(ctx context.Context) error                        { return nil }
func (f *fakeSession) Stop(ctx context.Context) error                         { return nil }
func (f *fakeSession) ChannelType() string                                    { return f.channelType }
func (f *fakeSession) Receive(ctx context.Context) ([]*messages.Incoming, error) {
	return nil, nil
}
func (f *fakeSession) Send(ctx context.Context, out *messages.Outgoing) error {
	f.sent = append(f.sent, out)
	return nil
}
func (f *fakeSession) Typing(ctx context.Context, channelID string) error { return nil }

func TestHandleMessageSendsReplyThroughMatchingChannel(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.Response{{Content: "pong"}}}
	k := kernel.New()
	session := &fakeSession{channelType: "telegram"}
	if err := k.Register(session); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := k.ConfigureAll(context.Background(), nil); err != nil {
		t.Fatalf("ConfigureAll: %v", err)
	}
	o := New(k, provider, nil, Options{PollInterval: time.Millisecond})

	msg := &messages.Incoming{ChannelType: "telegram", ChannelID: "c1", ID: "m1", Content: "ping"}
	o.HandleMessage(context.Background(), msg)

	if len(session.sent) != 1 {
		t.Fatalf("expected exactly one reply sent, got %d", len(session.sent))
	}
	if session.sent[0].Content != "pong" {
		t.Fatalf("expected reply content %q, got %q", "pong", session.sent[0].Content)
	}
	if session.sent[0].ReplyTo != "m1" {
		t.Fatalf("expected ReplyTo to echo the incoming id, got %q", session.sent[0].ReplyTo)
	}
}
