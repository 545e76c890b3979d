package profcore

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/joeycumines/go-profcore/heap"
	"github.com/joeycumines/go-profcore/internal/resolver"
)

// CPUSampleJSON is one resolved CPU sample in a flame-graph-friendly
// JSON shape: "(timestamp_ns, thread_id, thread_name?, frames[])".
// Output formats are collaborator-owned; this is the raw
// data a formatter consumes, not the formatter itself.
type CPUSampleJSON struct {
	TimestampNS uint64      `json:"timestamp_ns"`
	ThreadID    uint64      `json:"thread_id"`
	ThreadName  string      `json:"thread_name,omitempty"`
	Frames      []FrameJSON `json:"frames"`
}

// FrameJSON is one resolved frame
// "(function, file, line, is_native)".
type FrameJSON struct {
	Function string `json:"function"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	IsNative bool   `json:"is_native"`
}

// MarshalCPUProfile converts a cpu.Profile's resolved samples into raw
// JSON, one object per sample, for a collaborator's flame-graph
// formatter to consume.
func MarshalCPUProfile(samples []resolver.ResolvedSample) ([]byte, error) {
	out := make([]CPUSampleJSON, 0, len(samples))
	for _, s := range samples {
		frames := make([]FrameJSON, 0, len(s.Frames))
		for _, f := range s.Frames {
			frames = append(frames, FrameJSON{Function: f.Function, File: f.File, Line: f.Line, IsNative: f.Native})
		}
		out = append(out, CPUSampleJSON{
			TimestampNS: s.TimestampNS,
			ThreadID:    s.TID,
			ThreadName:  s.ThreadName,
			Frames:      frames,
		})
	}
	return json.Marshal(out)
}

// HeapEntryJSON is one live allocation
// heap.snapshot shape.
type HeapEntryJSON struct {
	Address uintptr     `json:"address"`
	Size    uint64      `json:"size"`
	Weight  uint32      `json:"weight"`
	BirthNS uint64      `json:"birth_ns"`
	Stack   []FrameJSON `json:"stack"`
}

// MarshalHeapSnapshot converts a heap.Sampler's Snapshot into raw JSON.
func MarshalHeapSnapshot(entries []heap.LiveEntry) ([]byte, error) {
	out := make([]HeapEntryJSON, 0, len(entries))
	for _, e := range entries {
		stack := make([]FrameJSON, 0, len(e.Stack))
		for _, f := range e.Stack {
			stack = append(stack, FrameJSON{Function: f.Function, File: f.File, Line: f.Line, IsNative: f.Native})
		}
		out = append(out, HeapEntryJSON{
			Address: e.Address,
			Size:    e.Size,
			Weight:  e.Weight,
			BirthNS: e.BirthNS,
			Stack:   stack,
		})
	}
	return json.Marshal(out)
}

// CollapsedStacks renders samples as "collapsed stack
// text": one line per sample, frames joined by ';' bottom->top, followed
// by a weight (CPU weight is uniformly 1).
func CollapsedStacks(samples []resolver.ResolvedSample) []string {
	lines := make([]string, 0, len(samples))
	for _, s := range samples {
		lines = append(lines, collapseLine(s.Frames, 1))
	}
	return lines
}

func collapseLine(frames []resolver.ResolvedFrame, weight int) string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Function
	}
	return strings.Join(names, ";") + " " + strconv.Itoa(weight)
}
