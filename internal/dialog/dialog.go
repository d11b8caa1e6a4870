// Package dialog serialises every confirmation and input prompt of the
// console through a single slot: one request is active at a time, later
// requests wait in FIFO order, and a presenter answers the active one.
package dialog

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotActive is returned when answering a request that is not the active one.
	ErrNotActive = errors.New("dialog request is not active")
	ErrClosed    = errors.New("dialog service closed")
)

type Kind int

const (
	KindConfirm Kind = iota
	KindPrompt
	KindTextarea
	KindMapping
	KindAccessKey
)

func (k Kind) String() string {
	switch k {
	case KindConfirm:
		return "confirm"
	case KindPrompt:
		return "prompt"
	case KindTextarea:
		return "textarea"
	case KindMapping:
		return "mapping"
	case KindAccessKey:
		return "access-key"
	}
	return "unknown"
}

type InputType string

const (
	InputText     InputType = "text"
	InputPassword InputType = "password"
)

// Request is one pending dialog. Fields other than done are read-only for
// presenters.
type Request struct {
	ID        uint64
	Kind      Kind
	Title     string
	Text      string
	Default   string
	InputType InputType
	Mapping   MappingInput
	AccessKey AccessKeyInput
	// Editing shows the active toggle of the access key form.
	Editing bool

	done chan result
}

type result struct {
	value any
	ok    bool
}

type Service struct {
	mu      sync.Mutex
	queue   []*Request
	nextID  uint64
	changed chan struct{}
	closed  bool
}

func New() *Service {
	return &Service{changed: make(chan struct{})}
}

// broadcast wakes every Next waiter; callers hold mu.
func (s *Service) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Active returns the request currently shown, or nil.
func (s *Service) Active() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

// Pending reports how many requests are queued, including the active one.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next blocks until a request other than last is active and returns it.
// Pass the previously handled request (or nil) as last.
func (s *Service) Next(ctx context.Context, last *Request) (*Request, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if len(s.queue) > 0 && s.queue[0] != last {
			req := s.queue[0]
			s.mu.Unlock()
			return req, nil
		}
		wait := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Submit answers the active request. A validation error leaves the request
// active so the presenter can ask again.
func (s *Service) Submit(id uint64, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0].ID != id {
		return ErrNotActive
	}
	req := s.queue[0]
	normalised, err := validate(req, value)
	if err != nil {
		return err
	}
	s.pop(req, result{value: normalised, ok: true})
	return nil
}

// Cancel resolves the active request with no value.
func (s *Service) Cancel(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0].ID != id {
		return ErrNotActive
	}
	s.pop(s.queue[0], result{ok: false})
	return nil
}

// Close cancels every queued request and stops presenters.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, req := range s.queue {
		req.done <- result{ok: false}
	}
	s.queue = nil
	s.closed = true
	s.broadcast()
}

func (s *Service) pop(req *Request, res result) {
	s.queue = s.queue[1:]
	req.done <- res
	s.broadcast()
}

func (s *Service) ask(ctx context.Context, req *Request) (any, bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, false, ErrClosed
	}
	s.nextID++
	req.ID = s.nextID
	req.done = make(chan result, 1)
	s.queue = append(s.queue, req)
	s.broadcast()
	s.mu.Unlock()

	select {
	case res := <-req.done:
		return res.value, res.ok, nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, queued := range s.queue {
		if queued == req {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.broadcast()
			return nil, false, ctx.Err()
		}
	}
	// Answered while the context was being cancelled.
	res := <-req.done
	return res.value, res.ok, nil
}

// Confirm asks a yes/no question; cancelling counts as "no".
func (s *Service) Confirm(ctx context.Context, title, text string) (bool, error) {
	v, ok, err := s.ask(ctx, &Request{Kind: KindConfirm, Title: title, Text: text})
	if err != nil || !ok {
		return false, err
	}
	return v.(bool), nil
}

// Prompt asks for one line. ok is false when the user cancelled, which is
// distinct from submitting an empty string.
func (s *Service) Prompt(ctx context.Context, title, text, defaultValue string, inputType InputType) (string, bool, error) {
	if inputType == "" {
		inputType = InputText
	}
	v, ok, err := s.ask(ctx, &Request{Kind: KindPrompt, Title: title, Text: text, Default: defaultValue, InputType: inputType})
	if err != nil || !ok {
		return "", false, err
	}
	return v.(string), true, nil
}

// Textarea asks for multi-line input.
func (s *Service) Textarea(ctx context.Context, title, text, defaultValue string) (string, bool, error) {
	v, ok, err := s.ask(ctx, &Request{Kind: KindTextarea, Title: title, Text: text, Default: defaultValue})
	if err != nil || !ok {
		return "", false, err
	}
	return v.(string), true, nil
}

func (s *Service) Mapping(ctx context.Context, title string, defaults MappingInput) (MappingInput, bool, error) {
	v, ok, err := s.ask(ctx, &Request{Kind: KindMapping, Title: title, Mapping: defaults})
	if err != nil || !ok {
		return MappingInput{}, false, err
	}
	return v.(MappingInput), true, nil
}

// AccessKey shows the access key form. editing exposes the active toggle.
func (s *Service) AccessKey(ctx context.Context, title string, defaults AccessKeyInput, editing bool) (AccessKeyForm, bool, error) {
	v, ok, err := s.ask(ctx, &Request{Kind: KindAccessKey, Title: title, AccessKey: defaults, Editing: editing})
	if err != nil || !ok {
		return AccessKeyForm{}, false, err
	}
	return v.(AccessKeyForm), true, nil
}
