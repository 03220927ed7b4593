package completion

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// FakeClient is a scripted Client for tests. Replies are matched by a
// predicate in registration order and fall back to a queue of default
// replies. It is safe for concurrent use.
type FakeClient struct {
	mu       sync.Mutex
	rules    []fakeRule
	queue    []fakeReply
	requests []Request
}

type fakeRule struct {
	match func(Request) bool
	reply fakeReply
}

type fakeReply struct {
	text string
	err  error
}

// NewFakeClient creates an empty FakeClient
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Respond queues text as the next unmatched reply
func (f *FakeClient) Respond(text string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeReply{text: text})
	return f
}

// Fail queues err as the next unmatched reply
func (f *FakeClient) Fail(err error) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeReply{err: err})
	return f
}

// When answers every request accepted by match with text
func (f *FakeClient) When(match func(Request) bool, text string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{match: match, reply: fakeReply{text: text}})
	return f
}

// WhenFail answers every request accepted by match with err
func (f *FakeClient) WhenFail(match func(Request) bool, err error) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{match: match, reply: fakeReply{err: err}})
	return f
}

// Requests returns a copy of every request received so far
func (f *FakeClient) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Name implements Client
func (f *FakeClient) Name() string {
	return "fake"
}

// Complete implements Client
func (f *FakeClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	recorded := req
	recorded.Messages = append([]Message(nil), req.Messages...)
	f.requests = append(f.requests, recorded)

	for _, rule := range f.rules {
		if rule.match(req) {
			return Response{Text: rule.reply.text}, rule.reply.err
		}
	}
	if len(f.queue) == 0 {
		return Response{}, errors.New("fake client: no scripted reply")
	}
	reply := f.queue[0]
	f.queue = f.queue[1:]
	return Response{Text: reply.text}, reply.err
}

// SystemContains matches requests whose system prompt contains substr
func SystemContains(substr string) func(Request) bool {
	return func(req Request) bool {
		for _, msg := range req.Messages {
			if msg.Role == RoleSystem && strings.Contains(msg.Content, substr) {
				return true
			}
		}
		return false
	}
}

// JSONRequest matches requests that ask for JSON output
func JSONRequest(req Request) bool {
	return req.JSON
}

// TextRequest matches requests that ask for free text
func TextRequest(req Request) bool {
	return !req.JSON
}
