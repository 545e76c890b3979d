package frame

// Supported interpreter-version layouts, selected when a profiler is
// constructed (cpu.New, heap.Sampler.Init). go-profcore doesn't embed a concrete
// interpreter, so "compile time" here means "construction time": the
// embedder names the interpreter version it was built against and New
// binds a Walker to the matching Layout once, for the lifetime of the
// profiler.

// Version identifies a supported interpreter frame layout family.
type Version string

const (
	// VersionLegacyOffset models an older interpreter generation where the
	// frame's instruction pointer field is a byte offset into the code
	// object's bytecode buffer. The walk still starts at
	// ThreadState.CurrentFrame; no C-frame indirection is followed, so an
	// embedder whose interpreter has one must resolve it when filling
	// CurrentFrame.
	VersionLegacyOffset Version = "legacy-offset"

	// VersionDirectFrame models a generation with a direct current_frame
	// pointer and a direct instruction pointer field, no tagging.
	VersionDirectFrame Version = "direct-frame"

	// VersionTaggedCode models the newest supported generation, where the
	// code-object field is a tagged pointer with 2 reserved low bits that
	// must be masked off before the address is dereferenced.
	VersionTaggedCode Version = "tagged-code"
)

// ownerShimPassthrough treats every frame as a plain frame; interpreters
// that don't model C-shim frames can use it directly.
func ownerShimPassthrough(uintptr, *loadedFrame) Owner { return OwnerFrame }

var layouts = map[Version]*Layout{
	VersionLegacyOffset: {
		Name:                 string(VersionLegacyOffset),
		PrevOffset:           0,
		CodeOffset:           8,
		CodeTagMask:          0,
		InstrOffset:          16,
		InstrIsOffset:        true,
		BytecodeBufferOffset: 8,
		OwnerOf:              ownerShimPassthrough,
	},
	VersionDirectFrame: {
		Name:          string(VersionDirectFrame),
		PrevOffset:    0,
		CodeOffset:    8,
		CodeTagMask:   0,
		InstrOffset:   16,
		InstrIsOffset: false,
		OwnerOf:       ownerShimPassthrough,
	},
	VersionTaggedCode: {
		Name:          string(VersionTaggedCode),
		PrevOffset:    0,
		CodeOffset:    8,
		CodeTagMask:   0x3, // 2 reserved low bits
		InstrOffset:   16,
		InstrIsOffset: false,
		OwnerOf:       ownerShimPassthrough,
	},
}

// Select returns the Layout registered for v, or nil if v is unsupported.
func Select(v Version) *Layout {
	return layouts[v]
}

// Register installs a custom Layout for a version name not built in,
// allowing an embedder to describe an interpreter this package doesn't
// know about yet. It is not safe to call concurrently with Select, and
// is intended for use only at process-init time.
func Register(v Version, l *Layout) {
	layouts[v] = l
}
