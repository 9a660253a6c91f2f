package recovery

import (
	"context"
	"errors"
	"testing"
)

func TestStrictAlwaysFails(t *testing.T) {
	s := NewStrictStrategy()
	for _, comp := range []string{ComponentXRef, ComponentObject, ComponentPages} {
		if act := s.OnError(context.Background(), errors.New("bad"), Location{Component: comp}); act != ActionFail {
			t.Fatalf("%s: expected fail, got %v", comp, act)
		}
	}
}

func TestLenientActions(t *testing.T) {
	s := NewLenientStrategy()
	ctx := context.Background()
	if act := s.OnError(ctx, errors.New("broken table"), Location{Component: ComponentXRef, ByteOffset: 120}); act != ActionFix {
		t.Fatalf("xref: expected fix, got %v", act)
	}
	if act := s.OnError(ctx, errors.New("broken object"), Location{Component: ComponentObject, ObjectNum: 4}); act != ActionSkip {
		t.Fatalf("object: expected skip, got %v", act)
	}
	if act := s.OnError(ctx, errors.New("odd"), Location{Component: ComponentContent}); act != ActionWarn {
		t.Fatalf("content: expected warn, got %v", act)
	}
	errs := s.Reported()
	if len(errs) != 3 {
		t.Fatalf("expected 3 recorded errors, got %d", len(errs))
	}
	if errs[0].Error() != "[xref] offset 120: broken table" {
		t.Fatalf("unexpected message %q", errs[0])
	}
}

func TestActionContinue(t *testing.T) {
	if ActionFail.Continue() {
		t.Fatalf("fail must not continue")
	}
	if !ActionSkip.Continue() || !ActionFix.Continue() || !ActionWarn.Continue() {
		t.Fatalf("non-fail actions continue")
	}
}
