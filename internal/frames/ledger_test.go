package frames

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-amqp/internal/promise"
)

func TestLedgerResolvesInOrder(t *testing.T) {
	l := NewLedger()
	p1, p2, p3 := promise.New(), promise.New(), promise.New()
	l.Push(10, p1)
	l.Push(4000, p2)
	l.Push(10, p3)

	if l.Written(2048) != 0 {
		t.Fatal("unexpected surplus")
	}
	if !p1.Resolved() || p2.Resolved() || p3.Resolved() {
		t.Fatal("only the first frame is fully written")
	}
	if l.Pending() != 4020-2048+10 {
		t.Fatalf("pending = %d", l.Pending())
	}

	l.Written(4020 - 2048)
	if !p2.Resolved() || p3.Resolved() {
		t.Fatal("second frame should now be complete, third not")
	}
	l.Written(10)
	if !p3.Resolved() || l.Len() != 0 || l.Pending() != 0 {
		t.Fatal("ledger should be drained")
	}
}

func TestLedgerSurplusAndNilPromise(t *testing.T) {
	l := NewLedger()
	l.Push(8, nil)
	if s := l.Written(12); s != 4 {
		t.Fatalf("surplus = %d, want 4", s)
	}
}

func TestLedgerFail(t *testing.T) {
	l := NewLedger()
	p := promise.New()
	l.Push(100, p)
	l.Written(50)
	boom := errors.New("boom")
	l.Fail(boom)
	if !errors.Is(p.Err(), boom) {
		t.Fatalf("got %v", p.Err())
	}
	if l.Pending() != 0 || l.Len() != 0 {
		t.Fatal("ledger should be empty")
	}
}
