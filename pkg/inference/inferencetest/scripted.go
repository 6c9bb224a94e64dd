// Package inferencetest provides a scripted inference.Provider
// for tests.
package inferencetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"digital.vasic.mobileqa/pkg/inference"
)

// Reply is one scripted provider answer.
type Reply struct {
	Text string
	Err  error
}

// Text returns a reply with the given text.
func Text(s string) Reply { return Reply{Text: s} }

// JSON returns a reply holding v marshalled as JSON.
func JSON(v any) Reply {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply{Text: string(data)}
}

// Fail returns a reply that fails with err.
func Fail(err error) Reply { return Reply{Err: err} }

// Scripted answers from per-purpose queues, then the shared
// queue, then the fallback reply.
type Scripted struct {
	mu        sync.Mutex
	name      string
	queue     []Reply
	byPurpose map[string][]Reply
	fallback  *Reply
	requests  []inference.Request
}

var _ inference.Provider = (*Scripted)(nil)

// New returns a provider answering with replies in order.
func New(replies ...Reply) *Scripted {
	return &Scripted{
		name:      "scripted",
		queue:     replies,
		byPurpose: make(map[string][]Reply),
	}
}

// On queues replies for requests with the given purpose.
func (s *Scripted) On(purpose string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPurpose[purpose] = append(s.byPurpose[purpose], replies...)
	return s
}

// Otherwise sets the reply used once the queues are empty.
func (s *Scripted) Otherwise(r Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = &r
	return s
}

// Name returns "scripted".
func (s *Scripted) Name() string { return s.name }

// Generate pops the next reply for req.
func (s *Scripted) Generate(
	ctx context.Context,
	req inference.Request,
) (inference.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	r, ok := s.next(req.Purpose)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return inference.Response{}, err
	}
	if !ok {
		err := fmt.Errorf("no scripted reply for purpose %q", req.Purpose)
		return inference.Response{},
			inference.NewError(s.name, inference.KindEmpty, 0, err)
	}
	if r.Err != nil {
		return inference.Response{}, r.Err
	}
	return inference.Response{Text: r.Text, Model: "scripted-model"}, nil
}

func (s *Scripted) next(purpose string) (Reply, bool) {
	if q := s.byPurpose[purpose]; len(q) > 0 {
		s.byPurpose[purpose] = q[1:]
		return q[0], true
	}
	if len(s.queue) > 0 {
		r := s.queue[0]
		s.queue = s.queue[1:]
		return r, true
	}
	if s.fallback != nil {
		return *s.fallback, true
	}
	return Reply{}, false
}

// Requests returns a copy of every request received.
func (s *Scripted) Requests() []inference.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inference.Request(nil), s.requests...)
}

// RequestsFor returns the requests with the given purpose.
func (s *Scripted) RequestsFor(purpose string) []inference.Request {
	var out []inference.Request
	for _, r := range s.Requests() {
		if r.Purpose == purpose {
			out = append(out, r)
		}
	}
	return out
}
