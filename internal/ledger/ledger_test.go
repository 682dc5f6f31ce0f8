package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryStore_GetCreatesWithInitialBalance(t *testing.T) {
	store := NewMemoryStore(3)

	u, err := store.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if u.ID != "u1" || u.Credits != 3 {
		t.Errorf("Get() = %+v, want {u1 3}", u)
	}
}

func TestMemoryStore_TryConsumeExhausts(t *testing.T) {
	ctx := context.Background()
	const n = 5
	store := NewMemoryStore(n)

	for i := 0; i < n; i++ {
		ok, err := store.TryConsume(ctx, "u1")
		if err != nil || !ok {
			t.Fatalf("TryConsume() #%d = %v, %v; want true", i+1, ok, err)
		}
		bal, _ := store.Balance(ctx, "u1")
		if bal != n-i-1 {
			t.Errorf("Balance after #%d = %d, want %d", i+1, bal, n-i-1)
		}
	}

	ok, err := store.TryConsume(ctx, "u1")
	if err != nil {
		t.Fatalf("TryConsume() error = %v", err)
	}
	if ok {
		t.Error("TryConsume() on empty balance = true, want false")
	}
	if bal, _ := store.Balance(ctx, "u1"); bal != 0 {
		t.Errorf("Balance = %d, want 0", bal)
	}
}

func TestMemoryStore_TryConsumeConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.TryConsume(ctx, "u1"); ok {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := succeeded.Load(); got != 10 {
		t.Errorf("successful consumes = %d, want 10", got)
	}
	if bal, _ := store.Balance(ctx, "u1"); bal != 0 {
		t.Errorf("Balance = %d, want 0", bal)
	}
}

func TestMemoryStore_Credit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)

	got, err := store.Credit(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if got != 23 {
		t.Errorf("Credit() = %d, want 23", got)
	}
	if bal, _ := store.Balance(ctx, "u1"); bal != 23 {
		t.Errorf("Balance = %d, want 23", bal)
	}
}

func TestMemoryStore_CreditRejectsNonPositive(t *testing.T) {
	store := NewMemoryStore(3)

	for _, amount := range []int{0, -5} {
		if _, err := store.Credit(context.Background(), "u1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Credit(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if bal, _ := store.Balance(context.Background(), "u1"); bal != 3 {
		t.Errorf("Balance = %d, want 3", bal)
	}
}

func TestMemoryStore_CreditConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Credit(ctx, "u1", 2)
		}()
	}
	wg.Wait()

	if bal, _ := store.Balance(ctx, "u1"); bal != 100 {
		t.Errorf("Balance = %d, want 100", bal)
	}
}
