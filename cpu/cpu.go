// Package cpu identifies the host CPU tier and freezes the dispatch profile
// the hot paths run on: copy and port-burst primitives, the cache coherency
// tier, and the interrupt batch ceiling. Selection happens exactly once at
// init; nothing on the hot path re-reads the feature record.
package cpu

import (
	hostcpu "golang.org/x/sys/cpu"
)

// Generation is the detected CPU family, in probe order.
type Generation int

const (
	Gen8086 Generation = iota
	Gen80186
	Gen80286
	Gen80386
	Gen80486
	GenPentium
	GenPentiumPro
	GenPentiumIII
)

func (g Generation) String() string {
	switch g {
	case Gen8086:
		return "8086"
	case Gen80186:
		return "80186"
	case Gen80286:
		return "80286"
	case Gen80386:
		return "80386"
	case Gen80486:
		return "80486"
	case GenPentium:
		return "pentium"
	case GenPentiumPro:
		return "pentium-pro"
	case GenPentiumIII:
		return "pentium-iii"
	}
	return "unknown"
}

// CachePolicy is what the probe concluded about the data cache.
type CachePolicy int

const (
	CacheUnknown CachePolicy = iota
	CacheNone
	CacheWriteThrough
	CacheWriteBack
)

// Features is the frozen capability record published by detection. Consumers
// take it once at init; it is never consulted from the hot path.
type Features struct {
	Generation  Generation
	IOWidth     int // 8, 16 or 32
	HasWBINVD   bool
	HasCLFLUSH  bool
	CachePolicy CachePolicy
}

// For synthesizes the feature record of a given generation. This is the
// classical probe ladder collapsed into a table: flag-bit persistence
// separates 8086/286/386, the AC bit separates 386/486, CPUID from there up.
func For(gen Generation) Features {
	f := Features{Generation: gen, IOWidth: 8, CachePolicy: CacheNone}
	if gen >= Gen80186 {
		f.IOWidth = 8 // string I/O exists but still byte-wide
	}
	if gen >= Gen80286 {
		f.IOWidth = 16
	}
	if gen >= Gen80386 {
		f.IOWidth = 32
		f.CachePolicy = CacheUnknown
	}
	if gen >= Gen80486 {
		f.HasWBINVD = true
		f.CachePolicy = CacheWriteThrough
	}
	if gen >= GenPentiumPro {
		f.CachePolicy = CacheWriteBack
	}
	if gen >= GenPentiumIII {
		f.HasCLFLUSH = true
	}
	return f
}

// Detect probes the host. On a modern host every probe rung holds, so this
// reports the top tier; the x/sys/cpu hints only matter for the CLFLUSH rung
// on non-x86 builds, which drop CLFLUSH and so select the whole-cache
// (WBINVD) tier.
func Detect() Features {
	if hostcpu.X86.HasSSE2 {
		return For(GenPentiumIII)
	}
	f := For(GenPentiumPro)
	f.HasCLFLUSH = false
	return f
}
