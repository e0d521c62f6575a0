// Package gc implements the tracing collector described in spec §4.4: a
// single-threaded tricolor mark-and-sweep over an intrusive live-object
// list, triggered by an allocation-byte threshold, plus the weak string
// interner that is scanned and pruned during sweep (§4.2).
package gc

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	pkgerrors "github.com/pkg/errors"

	"crux/internal/object"
)

// Status mirrors the original's GC_STATUS. Running is set while a
// collection is in progress and makes a nested Collect return at once, so
// allocation during GC bookkeeping never re-enters. Paused is the idle
// state between collections; setting it (Pause) does not block a later
// collection.
type Status uint8

const (
	Paused Status = iota
	Running
)

const (
	DefaultInitialThreshold = 1 << 20 // 1 MiB
	DefaultGrowFactor       = 2.0
)

// Heap owns every allocated object via the intrusive live-object list
// (chained through each object's Obj.Next) plus the allocation-byte
// counter and threshold that decide when to collect.
type Heap struct {
	objects          object.HeapObject
	bytesAllocated   int
	nextGC           int
	growFactor       float64
	initialThreshold int
	status           Status
	gray             []object.HeapObject
	interner         *Interner
	verbose          bool
}

func NewHeap(initialThreshold int, growFactor float64, verbose bool) *Heap {
	if initialThreshold <= 0 {
		initialThreshold = DefaultInitialThreshold
	}
	if growFactor <= 1 {
		growFactor = DefaultGrowFactor
	}
	h := &Heap{
		nextGC:           initialThreshold,
		growFactor:       growFactor,
		initialThreshold: initialThreshold,
		status:           Paused,
		verbose:          verbose,
	}
	h.interner = newInterner(h)
	return h
}

func (h *Heap) Interner() *Interner  { return h.interner }
func (h *Heap) BytesAllocated() int  { return h.bytesAllocated }
func (h *Heap) NextThreshold() int   { return h.nextGC }
func (h *Heap) IsRunning() bool      { return h.status == Running }
func (h *Heap) Pause()               { h.status = Paused }
func (h *Heap) SetVerbose(v bool)    { h.verbose = v }

// Track links a freshly allocated object into the live-object list and
// charges its size against the allocation counter. Every constructor in
// this repository that creates a heap object routes through here (or
// through Interner.Copy/Adopt for Strings) before the object escapes to the
// mutator. Track itself never collects: the object it is linking in is
// by definition not yet marked and not yet reachable from any root (it
// hasn't been pushed or stored anywhere), so a collection running between
// Track and the caller rooting the object would sweep it the same cycle
// it was created. The caller is responsible for calling ShouldCollect/
// Collect *before* Track when a threshold check is due — see (*VM).track
// in the vm package, which is the one place that pairs the two.
func (h *Heap) Track(o object.HeapObject, size int) {
	hdr := o.Header()
	hdr.Next = h.objects
	hdr.SetSize(size)
	h.objects = o
	h.bytesAllocated += size
}

// ShouldCollect reports whether the allocator should run a collection
// before returning the object it just tracked (or is about to track).
// Reentrancy during an in-progress collection is guarded by Collect itself
// (via status), not by this check, since allocation never happens on a
// second goroutine in this single-threaded VM.
func (h *Heap) ShouldCollect() bool {
	return h.bytesAllocated > h.nextGC
}

// Collect runs one full mark-sweep cycle. markRoots enumerates every GC
// root (the cached and current module records, whose stacks/frames/
// globals/open upvalues are traced from there, the native-module tables,
// the method tables, the root-guard stack and the match handler) by
// calling back into MarkValue / MarkObject. The string intern table is not
// a root: it is pruned after marking and before the sweep. The orchestration of "what counts as a root" lives in the
// vm package, which is the only place that knows the full VM-global and
// per-module state (§4.4's design note: GC state must not be process-wide
// statics reachable from inside this package).
func (h *Heap) Collect(markRoots func(h *Heap)) {
	if h.status == Running {
		return // reentrant collection during GC's own bookkeeping is a no-op
	}
	h.status = Running
	before := h.bytesAllocated
	markRoots(h)
	h.TraceGray()
	h.interner.sweepDead()
	freed := h.sweep()
	h.status = Paused
	h.updateThreshold()
	if h.verbose {
		fmt.Fprintf(os.Stderr, "gc: collected %s, heap %s -> %s, next gc at %s\n",
			humanize.Bytes(uint64(freed)), humanize.Bytes(uint64(before)),
			humanize.Bytes(uint64(h.bytesAllocated)), humanize.Bytes(uint64(h.nextGC)))
	}
}

func (h *Heap) updateThreshold() {
	grown := int(float64(h.bytesAllocated) * h.growFactor)
	if grown < h.initialThreshold {
		grown = h.initialThreshold
	}
	h.nextGC = grown
}

// MarkObject marks o live and, if this is the first time it was marked
// this cycle, pushes it onto the gray worklist so TraceGray visits its
// children.
func (h *Heap) MarkObject(o object.HeapObject) {
	if o == nil {
		return
	}
	hdr := o.Header()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	h.gray = append(h.gray, o)
}

// MarkValue marks v's referenced heap object, if it has one.
func (h *Heap) MarkValue(v object.Value) {
	if obj := v.AsObject(); obj != nil {
		h.MarkObject(obj)
	}
}

// TraceGray drains the gray worklist, tracing each object's outgoing
// references via traceChildren, until no gray objects remain.
func (h *Heap) TraceGray() {
	for len(h.gray) > 0 {
		n := len(h.gray) - 1
		o := h.gray[n]
		h.gray = h.gray[:n]
		h.traceChildren(o)
	}
}

// traceChildren switches on the object's kind (via Go's type switch,
// which here is exactly the tag dispatch spec §9 calls for: one case per
// Kind, no virtual methods) and marks every Value/HeapObject it holds.
func (h *Heap) traceChildren(o object.HeapObject) {
	switch t := o.(type) {
	case *object.String:
		// leaf
	case *object.Function:
		for _, c := range t.Chunk.Constants {
			h.MarkValue(c)
		}
	case *object.Closure:
		h.MarkObject(t.Function)
		for _, uv := range t.Upvalues {
			h.MarkObject(uv)
		}
	case *object.Upvalue:
		if t.IsClosed {
			h.MarkValue(t.Closed)
		}
	case *object.NativeFunction, *object.NativeMethod:
		// leaf
	case *object.Array:
		for _, e := range t.Elements {
			h.MarkValue(e)
		}
	case *object.Table:
		t.Each(func(k, v object.Value) {
			h.MarkValue(k)
			h.MarkValue(v)
		})
	case *object.Result:
		if t.IsOk {
			h.MarkValue(t.Value)
		} else if t.Err != nil {
			h.MarkObject(t.Err)
		}
	case *object.Error:
		// leaf
	case *object.Vector:
		// leaf
	case *object.StructType:
		// leaf
	case *object.StructInstance:
		for _, v := range t.Fields {
			h.MarkValue(v)
		}
	case *object.ModuleRecord:
		h.MarkModuleRecord(t)
	case *object.File:
		// leaf
	default:
		panic(pkgerrors.Errorf("gc: unhandled heap kind %T in traceChildren", o))
	}
}

// MarkModuleRecord marks every root owned by one module record: its
// globals, its live stack slots, each frame's closure, its open upvalues
// and its module closure. traceChildren calls it for every module record
// that gets marked, whether it was marked as a root by the vm package
// (cached and current modules) or reached as an ordinary Value (e.g.
// bound by a "use-as" import).
func (h *Heap) MarkModuleRecord(m *object.ModuleRecord) {
	m.Globals.Each(func(_ string, v object.Value) { h.MarkValue(v) })
	for i := 0; i < m.StackTop; i++ {
		h.MarkValue(m.Stack[i])
	}
	for i := 0; i < m.FrameCount; i++ {
		h.MarkObject(m.Frames[i].Closure)
	}
	for uv := m.OpenUpvalues; uv != nil; uv = uv.Next {
		h.MarkObject(uv)
	}
	if m.ModuleClosure != nil {
		h.MarkObject(m.ModuleClosure)
	}
}

// sweep walks the intrusive live-object list, freeing every unmarked
// object (closing its OS handle first, if it is a still-open File) and
// clearing the mark bit on every survivor for the next cycle.
func (h *Heap) sweep() int {
	var head object.HeapObject
	var tail object.HeapObject
	freed := 0

	node := h.objects
	for node != nil {
		hdr := node.Header()
		next := hdr.Next
		if hdr.Marked {
			hdr.Marked = false
			hdr.Next = nil
			if head == nil {
				head = node
			} else {
				tail.Header().Next = node
			}
			tail = node
		} else {
			finalize(node)
			freed += hdr.Size()
			h.bytesAllocated -= hdr.Size()
		}
		node = next
	}
	h.objects = head
	return freed
}

func finalize(o object.HeapObject) {
	if f, ok := o.(*object.File); ok && !f.IsClosed && f.Handle != nil {
		f.Handle.Close()
		f.IsClosed = true
	}
}

// LiveCount walks the live list and counts it; used by tests asserting GC
// reclaimed churn (§8 scenario 6).
func (h *Heap) LiveCount() int {
	n := 0
	for node := h.objects; node != nil; node = node.Header().Next {
		n++
	}
	return n
}
