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

// Package ops carries the shared execution context for analysis stages,
// and the fan-out helper used to parallelize per-frame work.
package ops

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/pbnjay/memory"
)

// An execution context for analysis stages.
type Context struct {
	Log        io.Writer
	MaxThreads int
	MemoryMB   int // memory.TotalMemory()/1024/1024

	// Optional fractional progress callback in [0,100]. Must not block;
	// reporting never alters results.
	OnProgress func(percent float32)
}

func NewContext(log io.Writer) *Context {
	return &Context{
		Log:        log,
		MaxThreads: runtime.GOMAXPROCS(0),
		MemoryMB:   int(memory.TotalMemory() / 1024 / 1024),
	}
}

// Reports fractional progress to the context's callback, if any.
func (c *Context) Progress(percent float32) {
	if c.OnProgress != nil {
		c.OnProgress(percent)
	}
}

// Returns the number of goroutines to use for tasks that each hold about
// taskBytes of working memory: the thread limit, lowered so the in-flight
// tasks fit the memory budget. At least one.
func (c *Context) LimitThreads(taskBytes int64) int {
	threads := c.MaxThreads
	if c.MemoryMB > 0 && taskBytes > 0 {
		if byMem := int(int64(c.MemoryMB) * 1024 * 1024 / taskBytes); byMem < threads {
			threads = byMem
		}
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

// Runs fn(i) for i in [0,n) on up to maxThreads goroutines, and returns
// the combined error of all failed invocations. Callers must only write
// to disjoint output slices from fn.
func RunLimited(n, maxThreads int, fn func(i int) error) (err error) {
	if maxThreads < 1 {
		maxThreads = 1
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		limiter <- true
		go func(i int) {
			defer func() { <-limiter; wg.Done() }()
			if e := fn(i); e != nil {
				errs <- e
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		if err == nil {
			err = e
		} else {
			err = fmt.Errorf("%s; %s", err.Error(), e.Error())
		}
	}
	return err
}
