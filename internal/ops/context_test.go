// Copyright (C) 2026 The cellflow authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

func TestRunLimitedRunsAll(t *testing.T) {
	var ran [100]int32
	err := RunLimited(100, 4, func(i int) error {
		atomic.AddInt32(&ran[i], 1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	for i, n := range ran {
		if n != 1 {
			t.Fatalf("index %d ran %d times", i, n)
		}
	}
}

func TestRunLimitedCombinesErrors(t *testing.T) {
	err := RunLimited(10, 2, func(i int) error {
		if i == 3 || i == 7 {
			return errors.New("boom")
		}
		return nil
	})
	if err == nil {
		t.Fatal("errors swallowed")
	}
	if strings.Count(err.Error(), "boom") != 2 {
		t.Errorf("combined error %q", err)
	}
}

func TestLimitThreads(t *testing.T) {
	c := &Context{MaxThreads: 8, MemoryMB: 1}
	// two half-megabyte tasks fit the 1 MB budget
	if n := c.LimitThreads(512 * 1024); n != 2 {
		t.Errorf("got %d threads, want 2", n)
	}
	// a task larger than the budget still gets one worker
	if n := c.LimitThreads(16 * 1024 * 1024); n != 1 {
		t.Errorf("got %d threads, want 1", n)
	}
	// tiny tasks leave the thread limit in charge
	if n := c.LimitThreads(1024); n != 8 {
		t.Errorf("got %d threads, want 8", n)
	}
	// unknown budget or task size falls back to the thread limit
	if n := (&Context{MaxThreads: 4}).LimitThreads(1 << 30); n != 4 {
		t.Errorf("got %d threads, want 4", n)
	}
	if n := c.LimitThreads(0); n != 8 {
		t.Errorf("got %d threads, want 8", n)
	}
}

func TestRunLimitedClampsThreads(t *testing.T) {
	total := int32(0)
	if err := RunLimited(5, 0, func(i int) error {
		atomic.AddInt32(&total, 1)
		return nil
	}); err != nil || total != 5 {
		t.Errorf("err %v total %d", err, total)
	}
}
