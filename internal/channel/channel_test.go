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

package channel

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"cellflow/internal/mmtiff"
	"cellflow/internal/ops"
)

const testSummary14 = `{"MicroManagerVersion":"1.4.23 20180220",` +
	`"Channels":2,"Slices":1,"Interval_ms":1000,"PixelSizeUm":0.5}`

func testContext() *ops.Context {
	c := ops.NewContext(io.Discard)
	c.MaxThreads = 2
	return c
}

// builds an interleaved two-channel acquisition; channel 0 frames hold
// value 10*t, channel 1 frames hold 1000+10*t
func twoChannelFile(t *testing.T, frames int, intervalMs float64) *mmtiff.File {
	t.Helper()
	var planes []mmtiff.SyntheticPlane
	for i := 0; i < frames; i++ {
		for ch := uint32(0); ch < 2; ch++ {
			data := make([]float32, 16)
			for j := range data {
				data[j] = float32(int(ch)*1000 + 10*i)
			}
			planes = append(planes, mmtiff.SyntheticPlane{
				Channel:     ch,
				Frame:       uint32(i),
				ElapsedMs:   intervalMs * float64(i),
				PixelSizeUm: 0.5,
				Data:        data,
			})
		}
	}
	return testFile(t, []byte(testSummary14), planes, 4, 4)
}

func TestNewFiltersPages(t *testing.T) {
	f := twoChannelFile(t, 5, 1000)

	for ch := int32(0); ch < 2; ch++ {
		c, err := New(f, ch, 0, "test")
		if err != nil {
			t.Fatalf("channel %d: %s", ch, err)
		}
		if c.NumFrames() != 5 {
			t.Fatalf("channel %d: got %d frames, want 5", ch, c.NumFrames())
		}
		s, err := c.Frames()
		if err != nil {
			t.Fatalf("channel %d frames: %s", ch, err)
		}
		for tt := int32(0); tt < s.Frames; tt++ {
			want := float32(int(ch)*1000 + 10*int(tt))
			if v := s.Frame(tt)[0]; v != want {
				t.Fatalf("channel %d frame %d: got %g want %g", ch, tt, v, want)
			}
		}
	}

	if _, err := New(f, 5, 0, "test"); !errors.Is(err, ErrNoMatchingPages) {
		t.Errorf("missing channel: got %v", err)
	}
}

func TestFramesCache(t *testing.T) {
	f := twoChannelFile(t, 3, 1000)
	c, err := New(f, 0, 0, "test")
	if err != nil {
		t.Fatalf("new: %s", err)
	}
	s1, err := c.Frames()
	if err != nil {
		t.Fatalf("frames: %s", err)
	}
	s2, _ := c.Frames()
	if s1 != s2 {
		t.Error("second Frames call did not return the cache")
	}
	s3, err := c.Reload()
	if err != nil {
		t.Fatalf("reload: %s", err)
	}
	if s3 == s1 {
		t.Error("Reload returned the stale cache")
	}
}

func TestIntervalReconciliation(t *testing.T) {
	// timestamps as intended: keep the acquisition setting
	f := twoChannelFile(t, 5, 1000)
	c, err := New(f, 0, 0, "good")
	if err != nil {
		t.Fatalf("new: %s", err)
	}
	if ok, known := c.FrameIntervalOK(DefaultIntervalTolerance); !ok || !known {
		t.Errorf("matching intervals flagged: ok=%v known=%v", ok, known)
	}
	buf := &bytes.Buffer{}
	if fint, replaced := c.ReconcileInterval(DefaultIntervalTolerance, buf); replaced || fint != 1000 {
		t.Errorf("reconcile changed a matching interval: %g %v", fint, replaced)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output %q", buf.String())
	}

	// timestamps 20% slower than intended: substitute the actual mean
	f = twoChannelFile(t, 5, 1200)
	c, err = New(f, 0, 0, "slow")
	if err != nil {
		t.Fatalf("new: %s", err)
	}
	mean, _ := c.IntervalStats()
	if math.Abs(mean-1200) > 1e-6 {
		t.Fatalf("actual mean interval %g, want 1200", mean)
	}
	buf.Reset()
	fint, replaced := c.ReconcileInterval(DefaultIntervalTolerance, buf)
	if !replaced || math.Abs(fint-1200) > 1e-6 {
		t.Errorf("reconcile: got %g replaced=%v, want 1200 true", fint, replaced)
	}
	if !strings.Contains(buf.String(), "using actual") {
		t.Errorf("substitution not logged: %q", buf.String())
	}
	if c.FIntervalMs != 1000 {
		t.Errorf("reconcile mutated the channel: %g", c.FIntervalMs)
	}
	c.OverrideInterval(fint)
	if c.FIntervalMs != 1200 {
		t.Errorf("override not applied: %g", c.FIntervalMs)
	}
}

func TestIntervalUnknownForSingleFrame(t *testing.T) {
	f := twoChannelFile(t, 1, 1000)
	c, err := New(f, 0, 0, "single")
	if err != nil {
		t.Fatalf("new: %s", err)
	}
	if deltas := c.ActualFrameIntervalsMs(); deltas != nil {
		t.Errorf("single frame intervals %v, want nil", deltas)
	}
	if _, known := c.FrameIntervalOK(DefaultIntervalTolerance); known {
		t.Error("interval check must be undefined for a single frame")
	}
	buf := &bytes.Buffer{}
	if fint, replaced := c.ReconcileInterval(DefaultIntervalTolerance, buf); replaced || fint != 1000 {
		t.Errorf("single frame reconcile: %g %v", fint, replaced)
	}
}

func TestTemporalMedianCache(t *testing.T) {
	f := twoChannelFile(t, 6, 1000)
	c, err := New(f, 0, 0, "test")
	if err != nil {
		t.Fatalf("new: %s", err)
	}

	ctx := testContext()
	m1, err := c.TemporalMedian(0, 0, 3, false, ctx)
	if err != nil {
		t.Fatalf("median: %s", err)
	}
	if m1.Frames != 4 || c.MedianWindow() != 3 {
		t.Fatalf("got %d frames window %d, want 4 frames window 3", m1.Frames, c.MedianWindow())
	}

	// without recalculate the cache wins, window argument ignored
	m2, err := c.TemporalMedian(0, 0, 5, false, ctx)
	if err != nil {
		t.Fatalf("median: %s", err)
	}
	if m2 != m1 || c.MedianWindow() != 3 {
		t.Error("cached median not returned")
	}

	m3, err := c.TemporalMedian(0, 0, 5, true, ctx)
	if err != nil {
		t.Fatalf("median: %s", err)
	}
	if m3.Frames != 2 || c.MedianWindow() != 5 {
		t.Errorf("recalculate: got %d frames window %d, want 2 frames window 5", m3.Frames, c.MedianWindow())
	}
}
