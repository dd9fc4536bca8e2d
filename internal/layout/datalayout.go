package layout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// alignSpec is one "<kind><size>:<abi>[:<pref>]" entry, all values in bits.
type alignSpec struct {
	Size uint64
	ABI  uint64
	Pref uint64
}

// DataLayout is the parsed form of a module's `target datalayout` string.
type DataLayout struct {
	BigEndian bool
	Pointers  map[uint64]alignSpec // by address space
	Ints      []alignSpec          // sorted by Size
	Floats    map[uint64]alignSpec
	Vectors   map[uint64]alignSpec
	Aggregate alignSpec // "a:<abi>:<pref>"
}

// DefaultDataLayout returns the LLVM defaults with the pointer spec taken from t.
func DefaultDataLayout(t Target) *DataLayout {
	ptrBits := uint64(t.PtrSize) * 8
	ptrAlign := uint64(t.PtrAlign) * 8
	if ptrBits == 0 {
		ptrBits, ptrAlign = 64, 64
	}
	return &DataLayout{
		Pointers: map[uint64]alignSpec{
			0: {Size: ptrBits, ABI: ptrAlign, Pref: ptrAlign},
		},
		Ints: []alignSpec{
			{Size: 1, ABI: 8, Pref: 8},
			{Size: 8, ABI: 8, Pref: 8},
			{Size: 16, ABI: 16, Pref: 16},
			{Size: 32, ABI: 32, Pref: 32},
			{Size: 64, ABI: 32, Pref: 64},
		},
		Floats: map[uint64]alignSpec{
			16:  {Size: 16, ABI: 16, Pref: 16},
			32:  {Size: 32, ABI: 32, Pref: 32},
			64:  {Size: 64, ABI: 64, Pref: 64},
			128: {Size: 128, ABI: 128, Pref: 128},
		},
		Vectors: map[uint64]alignSpec{
			64:  {Size: 64, ABI: 64, Pref: 64},
			128: {Size: 128, ABI: 128, Pref: 128},
		},
		Aggregate: alignSpec{ABI: 0, Pref: 64},
	}
}

// ParseDataLayout applies the specs of s on top of DefaultDataLayout(t).
// Specs that do not affect sizes (mangling, native widths, stack alignment,
// address spaces of allocas/globals/programs) are accepted and ignored.
func ParseDataLayout(s string, t Target) (*DataLayout, error) {
	dl := DefaultDataLayout(t)
	s = strings.TrimSpace(s)
	if s == "" {
		return dl, nil
	}
	for _, spec := range strings.Split(s, "-") {
		if spec == "" {
			continue
		}
		if err := dl.apply(spec); err != nil {
			return nil, &Error{Kind: ErrBadSpec, Spec: spec, Err: err}
		}
	}
	sort.Slice(dl.Ints, func(i, j int) bool { return dl.Ints[i].Size < dl.Ints[j].Size })
	return dl, nil
}

func (dl *DataLayout) apply(spec string) error {
	switch spec[0] {
	case 'e':
		dl.BigEndian = false
		return nil
	case 'E':
		dl.BigEndian = true
		return nil
	// mangling, native widths (and ni:), stack, alloca/program/global address spaces
	case 'm', 'n', 'S', 'A', 'P', 'G', 'F':
		return nil
	case 'p':
		// p[n]:<size>:<abi>[:<pref>[:<idx>]]
		fields := strings.Split(spec[1:], ":")
		addrSpace := uint64(0)
		if fields[0] != "" {
			n, err := strconv.ParseUint(fields[0], 10, 32)
			if err != nil {
				return err
			}
			addrSpace = n
		}
		if len(fields) < 3 {
			return fmt.Errorf("pointer spec needs size and abi alignment")
		}
		nums, err := parseBits(fields[1:])
		if err != nil {
			return err
		}
		as := alignSpec{Size: nums[0], ABI: nums[1], Pref: nums[1]}
		if len(nums) > 2 {
			as.Pref = nums[2]
		}
		dl.Pointers[addrSpace] = as
		return nil
	case 'a':
		// a:<abi>[:<pref>]
		fields := strings.Split(spec[1:], ":")
		if len(fields) < 2 || (fields[0] != "" && fields[0] != "0") {
			return fmt.Errorf("aggregate spec must look like a:<abi>[:<pref>]")
		}
		nums, err := parseBits(fields[1:])
		if err != nil {
			return err
		}
		dl.Aggregate = alignSpec{ABI: nums[0], Pref: nums[0]}
		if len(nums) > 1 {
			dl.Aggregate.Pref = nums[1]
		}
		return nil
	case 'i', 'f', 'v':
		fields := strings.Split(spec[1:], ":")
		if len(fields) < 2 {
			return fmt.Errorf("%c spec needs an abi alignment", spec[0])
		}
		nums, err := parseBits(fields)
		if err != nil {
			return err
		}
		as := alignSpec{Size: nums[0], ABI: nums[1], Pref: nums[1]}
		if len(nums) > 2 {
			as.Pref = nums[2]
		}
		switch spec[0] {
		case 'i':
			dl.setInt(as)
		case 'f':
			dl.Floats[as.Size] = as
		case 'v':
			dl.Vectors[as.Size] = as
		}
		return nil
	default:
		return fmt.Errorf("unknown spec kind %q", spec[0])
	}
}

func (dl *DataLayout) setInt(as alignSpec) {
	for i := range dl.Ints {
		if dl.Ints[i].Size == as.Size {
			dl.Ints[i] = as
			return
		}
	}
	dl.Ints = append(dl.Ints, as)
}

func parseBits(fields []string) ([]uint64, error) {
	out := make([]uint64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// PointerBits returns the pointer width for the address space, falling back to
// address space 0.
func (dl *DataLayout) PointerBits(addrSpace uint64) uint64 {
	return dl.pointer(addrSpace).Size
}

func (dl *DataLayout) pointer(addrSpace uint64) alignSpec {
	if as, ok := dl.Pointers[addrSpace]; ok {
		return as
	}
	return dl.Pointers[0]
}

// intABIBits follows LLVM: exact match, else the smallest wider integer spec,
// else the widest one.
func (dl *DataLayout) intABIBits(bits uint64) uint64 {
	for _, as := range dl.Ints {
		if as.Size >= bits {
			return as.ABI
		}
	}
	if len(dl.Ints) == 0 {
		return 8
	}
	return dl.Ints[len(dl.Ints)-1].ABI
}
