// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	fake := Fake(testEpoch)
	if !fake.Now().Equal(testEpoch) {
		t.Errorf("Now = %v, want %v", fake.Now(), testEpoch)
	}
	fake.Advance(time.Minute)
	if !fake.Now().Equal(testEpoch.Add(time.Minute)) {
		t.Errorf("Now after advance = %v", fake.Now())
	}
}

func TestFakeAfter(t *testing.T) {
	fake := Fake(testEpoch)
	ch := fake.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before advance")
	default:
	}

	fake.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(testEpoch.Add(10 * time.Second)) {
			t.Errorf("fire time = %v", fired)
		}
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(testEpoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	fake := Fake(testEpoch)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	fake.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after one interval")
	}

	// Two intervals with an unread channel: only one tick is
	// buffered, the second is dropped (capacity 1 like time.Ticker).
	fake.Advance(2 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after two intervals")
	}
	select {
	case <-ticker.C:
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := Fake(testEpoch)
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeSleep(t *testing.T) {
	fake := Fake(testEpoch)
	done := make(chan struct{})
	go func() {
		fake.Sleep(time.Second)
		close(done)
	}()

	fake.BlockUntil(1)
	fake.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after advance")
	}
}

func TestFakeFiringOrder(t *testing.T) {
	fake := Fake(testEpoch)
	first := fake.After(time.Second)
	second := fake.After(2 * time.Second)

	fake.Advance(3 * time.Second)

	firstTime := <-first
	secondTime := <-second
	if !firstTime.Before(secondTime) {
		t.Errorf("waiters fired out of deadline order: %v then %v", firstTime, secondTime)
	}
}
