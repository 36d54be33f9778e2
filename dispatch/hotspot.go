package dispatch

import (
	"sync"
	"time"

	"github.com/coreruntime/vmcore/classes"
)

// defaultOptimizationThreshold is the invocation count at which a function
// becomes eligible for OptimizeInvokedFunction.
const defaultOptimizationThreshold = 10000

// HotspotDetector tracks per-function invocation counts and flags a
// function as a recompilation candidate once it crosses threshold.
type HotspotDetector struct {
	threshold int

	mu    sync.RWMutex
	calls map[*classes.Function]*invocationInfo
}

type invocationInfo struct {
	count      int64
	firstCall  time.Time
	lastCall   time.Time
	isHotspot  bool
	hotspotAt  time.Time
}

// NewHotspotDetector creates a detector that flags a function once it has
// been called threshold times.
func NewHotspotDetector(threshold int) *HotspotDetector {
	return &HotspotDetector{threshold: threshold, calls: make(map[*classes.Function]*invocationInfo)}
}

// RecordCall increments fn's invocation counter (mirrored onto
// Function.InvocationCounter for code outside this package to read) and
// returns whether this call just crossed the optimization threshold.
func (hd *HotspotDetector) RecordCall(fn *classes.Function) bool {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	now := time.Now()
	info, ok := hd.calls[fn]
	if !ok {
		info = &invocationInfo{firstCall: now}
		hd.calls[fn] = info
	}
	info.count++
	info.lastCall = now
	fn.InvocationCounter = info.count

	if !info.isHotspot && info.count >= int64(hd.threshold) {
		info.isHotspot = true
		info.hotspotAt = now
		return true
	}
	return false
}

// IsHotspot reports whether fn has already crossed the threshold.
func (hd *HotspotDetector) IsHotspot(fn *classes.Function) bool {
	hd.mu.RLock()
	defer hd.mu.RUnlock()
	info, ok := hd.calls[fn]
	return ok && info.isHotspot
}

// OptimizeInvokedFunction implements DRT_OptimizeInvokedFunction (§4.5):
// called on every invocation of an unoptimized function; once the call
// count crosses the threshold it requests optimized compilation, modeled
// here as a boolean the compiler front-end checks before deciding to spend
// the cycles on an optimizing pass.
func (d *Dispatcher) OptimizeInvokedFunction(fn *classes.Function) bool {
	if fn.Code != nil && fn.Code.IsOptimized() {
		return false
	}
	return d.hotspot.RecordCall(fn)
}
