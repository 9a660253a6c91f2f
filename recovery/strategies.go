package recovery

import (
	"context"
	"fmt"
	"sync"
)

// StrictStrategy fails on the first malformed structure.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every error and keeps going. A broken cross
// reference section is rebuilt by scanning the file; a broken object is
// skipped and later resolves to null.
type LenientStrategy struct {
	mu     sync.Mutex
	Errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	switch location.Component {
	case ComponentXRef:
		return ActionFix
	case ComponentObject:
		return ActionSkip
	}
	return ActionWarn
}

// Reported returns a copy of the recorded errors.
func (s *LenientStrategy) Reported() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.Errors...)
}

// Component names used in Location.
const (
	ComponentXRef    = "xref"
	ComponentObject  = "object"
	ComponentPages   = "pages"
	ComponentContent = "content"
)
