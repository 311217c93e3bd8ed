package testutil

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("context should have a deadline")
	}
	if time.Until(deadline) > TestTimeout {
		t.Error("deadline is too far in the future")
	}
}

func TestAssertHelpers(t *testing.T) {
	AssertNoError(t, nil)
	AssertError(t, context.Canceled)
	AssertEqual(t, 42, 42)
	AssertEqual(t, "hello", "hello")
}

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	AssertEqual(t, clock.Now(), start)

	clock.Sleep(time.Second)
	AssertEqual(t, clock.Now(), start.Add(time.Second))
	AssertEqual(t, clock.Slept(), time.Second)
	AssertEqual(t, clock.SleepCount(), 1)

	clock.Advance(time.Minute)
	AssertEqual(t, clock.Now(), start.Add(time.Second+time.Minute))
	// Advance is not a sleep.
	AssertEqual(t, clock.Slept(), time.Second)

	clock.Rewind(time.Hour)
	if !clock.Now().Before(start) {
		t.Error("Rewind should move the clock backward")
	}
}

func TestMockWriterShortWrites(t *testing.T) {
	mw := NewMockWriter()
	mw.SetMaxPerWrite(2)

	n, err := mw.Write([]byte("abcdef"))
	AssertNoError(t, err)
	AssertEqual(t, n, 2)
	AssertEqual(t, mw.String(), "ab")
	AssertEqual(t, mw.WriteCount(), 1)
}

func TestMockWriterErrors(t *testing.T) {
	mw := NewMockWriter()
	mw.SetErrorOnNth(2)

	_, err := mw.Write([]byte("a"))
	AssertNoError(t, err)
	_, err = mw.Write([]byte("b"))
	AssertError(t, err)

	mw2 := NewMockWriter()
	boom := errors.New("boom")
	mw2.SetAlwaysError(boom)
	if _, err := mw2.Write([]byte("x")); err != boom {
		t.Errorf("got %v, want configured error", err)
	}
}

func TestShortReader(t *testing.T) {
	sr := NewShortReader([]byte("abcdef"), 4)

	buf := make([]byte, 10)
	n, err := sr.Read(buf)
	AssertNoError(t, err)
	AssertEqual(t, n, 4)

	n, err = sr.Read(buf)
	AssertNoError(t, err)
	AssertEqual(t, n, 2)

	_, err = sr.Read(buf)
	AssertEqual(t, err, io.EOF)
}

func TestErrReader(t *testing.T) {
	boom := errors.New("boom")
	er := &ErrReader{Err: boom}

	n, err := er.Read(make([]byte, 4))
	AssertEqual(t, n, 0)
	if err != boom {
		t.Errorf("got %v, want configured error", err)
	}
}
