package layout

import "strings"

// Target describes the target triple and its pointer properties.
//
// Only the pointer size matters for triples without an explicit datalayout;
// everything else falls back to the LLVM default specs.
type Target struct {
	Triple   string // e.g. "x86_64-linux-gnu"
	PtrSize  int    // bytes
	PtrAlign int    // bytes
}

func X86_64LinuxGNU() Target {
	return Target{
		Triple:   "x86_64-linux-gnu",
		PtrSize:  8,
		PtrAlign: 8,
	}
}

// 32-bit architectures by triple prefix. Anything else is treated as 64-bit,
// which matches the LLVM default "p:64:64:64".
var arch32 = []string{
	"i386", "i486", "i586", "i686",
	"arm", "armv", "thumb",
	"mips", "mipsel",
	"powerpc",
	"riscv32",
	"wasm32",
	"sparc",
	"hexagon",
	"msp430",
	"le32",
}

// TargetForTriple picks pointer properties from the architecture part of a triple.
// An empty triple yields X86_64LinuxGNU.
func TargetForTriple(triple string) Target {
	if strings.TrimSpace(triple) == "" {
		return X86_64LinuxGNU()
	}
	arch := triple
	if i := strings.IndexByte(arch, '-'); i >= 0 {
		arch = arch[:i]
	}
	// mips64/ppc64/sparcv9 share a prefix with their 32-bit siblings
	if strings.Contains(arch, "64") || arch == "sparcv9" {
		return Target{Triple: triple, PtrSize: 8, PtrAlign: 8}
	}
	for _, p := range arch32 {
		if strings.HasPrefix(arch, p) {
			return Target{Triple: triple, PtrSize: 4, PtrAlign: 4}
		}
	}
	return Target{Triple: triple, PtrSize: 8, PtrAlign: 8}
}
