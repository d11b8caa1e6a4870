package dialog

import (
	"context"
	"errors"
	"sync"
)

// Presenter shows one request to the user and answers it through the
// service with Submit or Cancel.
type Presenter interface {
	Present(ctx context.Context, s *Service, req *Request) error
}

// Serve feeds active requests to p until ctx is done or the service closes.
func Serve(ctx context.Context, s *Service, p Presenter) error {
	var last *Request
	for {
		req, err := s.Next(ctx, last)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		last = req
		if err := p.Present(ctx, s, req); err != nil {
			// The caller gave up on the request while it was shown.
			if errors.Is(err, ErrNotActive) {
				continue
			}
			s.Cancel(req.ID)
			return err
		}
	}
}

// Start runs Serve in the background and returns a function that stops it.
func Start(ctx context.Context, s *Service, p Presenter) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Serve(ctx, s, p)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Answer is one scripted reply. Cancel wins over Value.
type Answer struct {
	Value  any
	Cancel bool
}

func Yes() Answer { return Answer{Value: true} }

func No() Answer { return Answer{Value: false} }

func Text(v string) Answer { return Answer{Value: v} }

func Dismiss() Answer { return Answer{Cancel: true} }

func With(v any) Answer { return Answer{Value: v} }

// ScriptedPresenter answers requests from a fixed list, in order; once the
// list is exhausted it either cancels or, with AutoConfirm, says yes to
// confirmations. Used by tests and non-interactive runs.
type ScriptedPresenter struct {
	mu          sync.Mutex
	answers     []Answer
	AutoConfirm bool

	Seen             []Request
	ValidationErrors []error
}

func NewScripted(answers ...Answer) *ScriptedPresenter {
	return &ScriptedPresenter{answers: answers}
}

func (p *ScriptedPresenter) Present(ctx context.Context, s *Service, req *Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Seen = append(p.Seen, *req)

	for {
		if len(p.answers) == 0 {
			if p.AutoConfirm && req.Kind == KindConfirm {
				return s.Submit(req.ID, true)
			}
			return s.Cancel(req.ID)
		}
		a := p.answers[0]
		p.answers = p.answers[1:]
		if a.Cancel {
			return s.Cancel(req.ID)
		}
		err := s.Submit(req.ID, a.Value)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotActive) {
			return err
		}
		// Validation failed; the dialog stays open for the next answer.
		p.ValidationErrors = append(p.ValidationErrors, err)
	}
}

// Requests returns a copy of every request presented so far.
func (p *ScriptedPresenter) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.Seen...)
}

func (p *ScriptedPresenter) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.ValidationErrors...)
}
