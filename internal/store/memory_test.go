package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreAdjustAccount(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()

	if err := s.EnsureAccount(ctx, "a"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}

	err := s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error {
		balance, err := tx.AdjustAccount(ctx, "a", 500)
		if err != nil {
			return err
		}
		if balance != 500 {
			return fmt.Errorf("expected 500, got %d", balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	balance, err := s.AccountBalance(ctx, "a")
	if err != nil || balance != 500 {
		t.Fatalf("expected committed balance 500, got %d (%v)", balance, err)
	}
}

func TestMemoryStoreNegativeGuard(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")
	SeedAccount(s, "a", 100)

	err := s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error {
		_, err := tx.AdjustAccount(ctx, "a", -200)
		return err
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	if balance, _ := s.AccountBalance(ctx, "a"); balance != 100 {
		t.Fatalf("failed update mutated balance: %d", balance)
	}
}

func TestMemoryStoreUnknownAccount(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()

	if _, err := s.AccountBalance(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err := s.Update(ctx, []string{AccountKey("ghost")}, func(tx Tx) error {
		_, err := tx.AdjustAccount(ctx, "ghost", 10)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found inside update, got %v", err)
	}
}

func TestMemoryStoreRollbackDiscardsEverything(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")
	SeedAccount(s, "a", 1_000)
	boom := errors.New("boom")

	err := s.Update(ctx, []string{AccountKey("a"), WalletKey("o", "USD")}, func(tx Tx) error {
		if _, err := tx.AdjustAccount(ctx, "a", -400); err != nil {
			return err
		}
		if _, err := tx.AdjustWallet(ctx, "o", "USD", decimal.NewFromInt(50)); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, Transaction{ID: "t1", AccountID: "a", Kind: KindWireOut, Amount: -400}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	if balance, _ := s.AccountBalance(ctx, "a"); balance != 1_000 {
		t.Fatalf("rollback leaked account delta: %d", balance)
	}
	if balances, _ := s.WalletBalances(ctx, "o"); len(balances) != 0 {
		t.Fatalf("rollback leaked wallet delta: %v", balances)
	}
	if recs, _ := s.Transactions(ctx, "a"); len(recs) != 0 {
		t.Fatalf("rollback leaked history: %v", recs)
	}
}

func TestMemoryStoreStagedReadsObserveEarlierWrites(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")
	SeedAccount(s, "a", 100)

	err := s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error {
		if _, err := tx.AdjustAccount(ctx, "a", -60); err != nil {
			return err
		}
		// The second debit must see the staged 40, not the committed 100.
		if _, err := tx.AdjustAccount(ctx, "a", -60); !errors.Is(err, ErrInsufficientFunds) {
			return fmt.Errorf("expected staged insufficiency, got %v", err)
		}
		balance, err := tx.AccountBalance(ctx, "a")
		if err != nil {
			return err
		}
		if balance != 40 {
			return fmt.Errorf("expected staged balance 40, got %d", balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
}

func TestMemoryStoreWalletLazyCreation(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()

	err := s.Update(ctx, []string{WalletKey("o", "EUR")}, func(tx Tx) error {
		balance, err := tx.AdjustWallet(ctx, "o", "EUR", decimal.NewFromInt(25))
		if err != nil {
			return err
		}
		if !balance.Equal(decimal.NewFromInt(25)) {
			return fmt.Errorf("expected 25, got %s", balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	err = s.Update(ctx, []string{WalletKey("o", "EUR")}, func(tx Tx) error {
		_, err := tx.AdjustWallet(ctx, "o", "EUR", decimal.NewFromInt(-30))
		return err
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestMemoryStoreContentionTimeout(t *testing.T) {
	s := NewMemory(50 * time.Millisecond)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")

	entered := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error {
			close(entered)
			<-proceed
			return nil
		})
	}()
	<-entered

	err := s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error { return nil })
	if !errors.Is(err, ErrContended) {
		t.Fatalf("expected contention timeout, got %v", err)
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("holder update failed: %v", err)
	}
}

func TestMemoryStoreCancelledContextIsNotContention(t *testing.T) {
	s := NewMemory(time.Minute)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")

	entered := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error {
			close(entered)
			<-proceed
			return nil
		})
	}()
	<-entered

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Update(cancelled, []string{AccountKey("a")}, func(tx Tx) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation error, got %v", err)
	}
	if errors.Is(err, ErrContended) {
		t.Fatalf("abandoned request reported as contention")
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("holder update failed: %v", err)
	}
}

func TestMemoryStoreDisjointKeysProceedInParallel(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")
	s.EnsureAccount(ctx, "b")

	aEntered := make(chan struct{})
	bDone := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error {
			close(aEntered)
			// Completes only after the update on the disjoint key finished.
			<-bDone
			return nil
		})
	}()
	<-aEntered

	if err := s.Update(ctx, []string{AccountKey("b")}, func(tx Tx) error { return nil }); err != nil {
		t.Fatalf("disjoint update blocked: %v", err)
	}
	close(bDone)
	if err := <-done; err != nil {
		t.Fatalf("holder update failed: %v", err)
	}
}

func TestMemoryStoreOpposingKeyOrdersDoNotDeadlock(t *testing.T) {
	s := NewMemory(2 * time.Second)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")
	s.EnsureAccount(ctx, "b")
	SeedAccount(s, "a", 1_000)
	SeedAccount(s, "b", 1_000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		keys := []string{AccountKey("a"), AccountKey("b")}
		if i%2 == 1 {
			keys = []string{AccountKey("b"), AccountKey("a")}
		}
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			err := s.Update(ctx, keys, func(tx Tx) error {
				if _, err := tx.AdjustAccount(ctx, "a", -1); err != nil {
					return err
				}
				_, err := tx.AdjustAccount(ctx, "b", 1)
				return err
			})
			if err != nil {
				t.Errorf("update failed: %v", err)
			}
		}(keys)
	}
	wg.Wait()

	a, _ := s.AccountBalance(ctx, "a")
	b, _ := s.AccountBalance(ctx, "b")
	if a+b != 2_000 || a != 950 {
		t.Fatalf("unexpected balances a=%d b=%d", a, b)
	}
}

func TestMemoryStoreDuplicateKeysAreSafe(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")

	err := s.Update(ctx, []string{AccountKey("a"), AccountKey("a")}, func(tx Tx) error {
		_, err := tx.AdjustAccount(ctx, "a", 10)
		return err
	})
	if err != nil {
		t.Fatalf("duplicate keys deadlocked: %v", err)
	}
}

func TestMemoryStoreHistoryNewestFirst(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	s.EnsureAccount(ctx, "a")
	SeedAccount(s, "a", 100)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("t%d", i)
		err := s.Update(ctx, []string{AccountKey("a")}, func(tx Tx) error {
			return tx.AppendTransaction(ctx, Transaction{ID: id, AccountID: "a", Kind: KindWireOut, Amount: -1, CreatedAt: time.Now().UTC()})
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	recs, err := s.Transactions(ctx, "a")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "t2" || recs[2].ID != "t0" {
		t.Fatalf("expected newest first ordering, got %+v", recs)
	}
}
