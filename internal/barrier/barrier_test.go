package barrier

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSinglePartyNeverBlocks(t *testing.T) {
	b := New(1)
	for i := 0; i < 10; i++ {
		if err := b.Wait(); err != nil {
			t.Fatalf("Wait() round %d: %v", i, err)
		}
	}
	if got := b.Generation(); got != 10 {
		t.Errorf("Generation() = %d, want 10", got)
	}
}

// Every party must observe all writes of the previous phase after each
// round, no matter how many rounds run back to back.
func TestRepeatedRounds(t *testing.T) {
	const parties = 8
	const rounds = 200

	b := New(parties)
	var counter atomic.Int64
	errs := make(chan error, parties)

	var wg sync.WaitGroup
	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				counter.Add(1)
				if err := b.Wait(); err != nil {
					errs <- err
					return
				}
				if got, want := counter.Load(), int64((r+1)*parties); got < want {
					errs <- errors.New("stale round released early")
					return
				}
				if err := b.Wait(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
	if got := b.Generation(); got != 2*rounds {
		t.Errorf("Generation() = %d, want %d", got, 2*rounds)
	}
}

func TestBreakReleasesWaiters(t *testing.T) {
	b := New(3)
	cause := errors.New("thread faulted")

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- b.Wait() }()
	}

	time.Sleep(10 * time.Millisecond)
	b.Break(cause)

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if !errors.Is(err, cause) {
				t.Errorf("Wait() = %v, want %v", err, cause)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter not released by Break")
		}
	}

	if err := b.Wait(); !errors.Is(err, cause) {
		t.Errorf("Wait() after Break = %v, want %v", err, cause)
	}
	if err := b.Err(); !errors.Is(err, cause) {
		t.Errorf("Err() = %v, want %v", err, cause)
	}
}

func TestBreakDefaultCause(t *testing.T) {
	b := New(2)
	b.Break(nil)
	if err := b.Wait(); !errors.Is(err, ErrBroken) {
		t.Errorf("Wait() = %v, want ErrBroken", err)
	}
}

func TestLeaveWhileOthersWaitIsDivergence(t *testing.T) {
	b := New(2)

	done := make(chan error, 1)
	go func() { done <- b.Wait() }()

	time.Sleep(10 * time.Millisecond)
	b.Leave()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDivergence) {
			t.Errorf("Wait() = %v, want ErrDivergence", err)
		}
	case <-time.After(time.Second):
		t.Fatal("divergent waiter not released")
	}
}

func TestArriveAfterLeaveIsDivergence(t *testing.T) {
	b := New(2)
	b.Leave()
	if err := b.Wait(); !errors.Is(err, ErrDivergence) {
		t.Errorf("Wait() = %v, want ErrDivergence", err)
	}
}

func TestLeaveAfterCompletedRounds(t *testing.T) {
	b := New(4)
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Wait(); err != nil {
				errs <- err
			}
			b.Leave()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if err := b.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestResetKeepsGeneration(t *testing.T) {
	b := New(1)
	_ = b.Wait()
	b.Break(nil)
	b.Reset(1)

	if err := b.Err(); err != nil {
		t.Fatalf("Err() after Reset = %v", err)
	}
	if err := b.Wait(); err != nil {
		t.Fatalf("Wait() after Reset = %v", err)
	}
	if got := b.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
}
