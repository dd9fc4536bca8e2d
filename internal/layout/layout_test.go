package layout

import (
	"errors"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

const x86DataLayout = "e-m:e-p270:32:32-p271:32:32-p272:64:64-i64:64-f80:128-n8:16:32:64-S128"

func mustEngine(t *testing.T, dl string, triple string) *Engine {
	t.Helper()
	m := ir.NewModule()
	m.DataLayout = dl
	m.TargetTriple = triple
	e, err := ForModule(m)
	if err != nil {
		t.Fatalf("ForModule(%q, %q): %v", dl, triple, err)
	}
	return e
}

func TestPointerBits(t *testing.T) {
	cases := []struct {
		name   string
		dl     string
		triple string
		want   uint64
	}{
		{"empty module defaults to 64", "", "", 64},
		{"x86_64 layout", x86DataLayout, "x86_64-unknown-linux-gnu", 64},
		{"i386 triple without layout", "", "i386-pc-linux-gnu", 32},
		{"explicit p spec wins over triple", "e-p:32:32", "x86_64-unknown-linux-gnu", 32},
		{"armv7 triple", "", "armv7-unknown-linux-gnueabihf", 32},
		{"aarch64 triple", "", "aarch64-unknown-linux-gnu", 64},
		{"mips64 is not mips", "", "mips64-unknown-linux-gnu", 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := mustEngine(t, tc.dl, tc.triple)
			if got := e.PointerBits(); got != tc.want {
				t.Fatalf("PointerBits() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAllocSizeScalars(t *testing.T) {
	e := mustEngine(t, x86DataLayout, "x86_64-unknown-linux-gnu")
	cases := []struct {
		typ       types.Type
		wantSize  uint64
		wantAlign uint64
	}{
		{types.I1, 1, 1},
		{types.I8, 1, 1},
		{types.I16, 2, 2},
		{types.I32, 4, 4},
		{types.I64, 8, 8},
		{types.NewInt(24), 4, 4},
		{types.I128, 16, 8},
		{types.Float, 4, 4},
		{types.Double, 8, 8},
		{types.X86_FP80, 16, 16},
		{types.I8Ptr, 8, 8},
	}
	for _, tc := range cases {
		l, err := e.LayoutOf(tc.typ)
		if err != nil {
			t.Fatalf("LayoutOf(%s): %v", tc.typ, err)
		}
		if l.Size != tc.wantSize || l.Align != tc.wantAlign {
			t.Errorf("LayoutOf(%s) = size %d align %d, want size %d align %d", tc.typ, l.Size, l.Align, tc.wantSize, tc.wantAlign)
		}
	}
}

func TestDefaultI64AlignmentIsFourBytes(t *testing.T) {
	// без i64:64 LLVM по умолчанию выравнивает i64 на 4 байта
	e := mustEngine(t, "e-p:32:32", "i386-pc-linux-gnu")
	l, err := e.LayoutOf(types.NewStruct(types.I8, types.I64))
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 12 || l.FieldOffsets[1] != 4 {
		t.Fatalf("struct {i8, i64} = size %d offsets %v, want 12 [0 4]", l.Size, l.FieldOffsets)
	}
}

func TestAggregates(t *testing.T) {
	e := mustEngine(t, x86DataLayout, "x86_64-unknown-linux-gnu")

	padded := types.NewStruct(types.I8, types.I32, types.I8)
	l, err := e.LayoutOf(padded)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 12 || l.Align != 4 {
		t.Fatalf("padded struct = size %d align %d, want 12/4", l.Size, l.Align)
	}
	if want := []uint64{0, 4, 8}; !equalOffsets(l.FieldOffsets, want) {
		t.Fatalf("padded offsets = %v, want %v", l.FieldOffsets, want)
	}

	packed := types.NewStruct(types.I8, types.I32, types.I8)
	packed.Packed = true
	l, err = e.LayoutOf(packed)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 6 || l.Align != 1 {
		t.Fatalf("packed struct = size %d align %d, want 6/1", l.Size, l.Align)
	}

	arr := types.NewArray(10, types.I32)
	if size, err := e.AllocSize(arr); err != nil || size != 40 {
		t.Fatalf("AllocSize([10 x i32]) = %d, %v; want 40", size, err)
	}

	vec := types.NewVector(4, types.Float)
	if size, err := e.AllocSize(vec); err != nil || size != 16 {
		t.Fatalf("AllocSize(<4 x float>) = %d, %v; want 16", size, err)
	}
}

func TestUnsizedTypes(t *testing.T) {
	e := mustEngine(t, "", "")
	_, err := e.AllocSize(types.Void)
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != ErrUnsized {
		t.Fatalf("AllocSize(void) err = %v, want ErrUnsized", err)
	}

	opaque := types.NewStruct()
	opaque.Opaque = true
	opaque.TypeName = "struct.FILE"
	if _, err := e.AllocSize(opaque); !errors.As(err, &lerr) || lerr.Kind != ErrUnsized {
		t.Fatalf("AllocSize(opaque) err = %v, want ErrUnsized", err)
	}
}

func TestRecursiveStructReportsCycle(t *testing.T) {
	e := mustEngine(t, "", "")
	node := types.NewStruct()
	node.TypeName = "node"
	node.Fields = []types.Type{types.I32, node}
	_, err := e.AllocSize(node)
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != ErrRecursiveUnsized {
		t.Fatalf("AllocSize(recursive) err = %v, want ErrRecursiveUnsized", err)
	}
}

func TestParseDataLayoutRejectsGarbage(t *testing.T) {
	for _, dl := range []string{"p:abc:64", "i32", "q64:64", "a1:0:64"} {
		if _, err := ParseDataLayout(dl, X86_64LinuxGNU()); err == nil {
			t.Errorf("ParseDataLayout(%q) succeeded, want error", dl)
		}
	}
}

func equalOffsets(got, want []uint64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
