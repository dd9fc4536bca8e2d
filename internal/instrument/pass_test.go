package instrument

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/stretchr/testify/require"

	"nondetify/internal/diag"
)

const progSource = `#include <stdlib.h>

int main(void) {
  int x = __VERIFIER_nondet_int();
  long y = __VERIFIER_nondet_long();
  char *p = malloc(16);
  return x + (int)y;
}
`

const progIR = `source_filename = "prog.c"
target datalayout = "e-m:e-i64:64-f80:128-n8:16:32:64-S128"
target triple = "x86_64-unknown-linux-gnu"

define i32 @main() !dbg !5 {
entry:
  %x = call i32 @__VERIFIER_nondet_int(), !dbg !8
  %y = call i64 @__VERIFIER_nondet_long(), !dbg !9
  %p = call i8* @malloc(i64 16), !dbg !10
  %t = trunc i64 %y to i32
  %sum = add i32 %x, %t
  ret i32 %sum
}

declare i32 @__VERIFIER_nondet_int()

declare i64 @__VERIFIER_nondet_long()

declare i8* @malloc(i64)

!llvm.dbg.cu = !{!0}
!llvm.module.flags = !{!3, !4}

!0 = distinct !DICompileUnit(language: DW_LANG_C99, file: !1, producer: "clang", isOptimized: false, runtimeVersion: 0, emissionKind: FullDebug, enums: !2)
!1 = !DIFile(filename: "prog.c", directory: "/tmp")
!2 = !{}
!3 = !{i32 2, !"Dwarf Version", i32 4}
!4 = !{i32 2, !"Debug Info Version", i32 3}
!5 = distinct !DISubprogram(name: "main", scope: !1, file: !1, line: 3, type: !6, scopeLine: 3, spFlags: DISPFlagDefinition, unit: !0, retainedNodes: !2)
!6 = !DISubroutineType(types: !7)
!7 = !{null}
!8 = !DILocation(line: 4, column: 11, scope: !5)
!9 = !DILocation(line: 5, column: 12, scope: !5)
!10 = !DILocation(line: 6, column: 13, scope: !5)
`

const callocIR = `target datalayout = "e-m:e-i64:64-f80:128-n8:16:32:64-S128"
target triple = "x86_64-unknown-linux-gnu"

define i32* @table(i32 %n) {
entry:
  %count = sext i32 %n to i64
  %mem = call i8* @calloc(i64 %count, i64 4)
  %tab = bitcast i8* %mem to i32*
  ret i32* %tab
}

declare i8* @calloc(i64, i64)
`

const noDebugIR = `target triple = "x86_64-unknown-linux-gnu"

define i32 @f() {
entry:
  %a = call i32 @__VERIFIER_nondet_int()
  %b = call i32 @__VERIFIER_nondet_int()
  %c = add i32 %a, %b
  ret i32 %c
}

declare i32 @__VERIFIER_nondet_int()
`

func parse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := asm.ParseString("test.ll", src)
	require.NoError(t, err)
	return m
}

func callsTo(m *ir.Module, name string) []*ir.InstCall {
	var out []*ir.InstCall
	for _, f := range m.Funcs {
		for _, b := range f.Blocks {
			for _, inst := range b.Insts {
				call, ok := inst.(*ir.InstCall)
				if !ok {
					continue
				}
				if callee, ok := call.Callee.(*ir.Func); ok && callee.Name() == name {
					out = append(out, call)
				}
			}
		}
	}
	return out
}

func findGlobal(m *ir.Module, name string) *ir.Global {
	for _, g := range m.Globals {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

func globalText(t *testing.T, m *ir.Module, name string) string {
	t.Helper()
	g := findGlobal(m, name)
	require.NotNil(t, g, "global @%s", name)
	arr, ok := g.Init.(*constant.CharArray)
	require.True(t, ok, "global @%s init is %T", name, g.Init)
	return string(arr.X)
}

func intArg(t *testing.T, call *ir.InstCall, i int) int64 {
	t.Helper()
	c, ok := call.Args[i].(*constant.Int)
	require.True(t, ok, "arg %d is %T", i, call.Args[i])
	return c.X.Int64()
}

func TestRunRewritesProducersAndAllocators(t *testing.T) {
	m := parse(t, progIR)
	bag := diag.NewBag(32)
	p := New(Options{SourcePath: writeSource(t, progSource), Reporter: diag.BagReporter{Bag: bag}})

	res, err := p.Run(context.Background(), m)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, 2, res.Producers())
	require.Equal(t, 1, res.Allocators())
	require.Equal(t, 0, bag.Len(), "%v", bag.Items())

	require.Empty(t, callsTo(m, "__VERIFIER_nondet_int"))
	require.Empty(t, callsTo(m, "__VERIFIER_nondet_long"))
	require.Len(t, callsTo(m, "malloc"), 1)

	regs := callsTo(m, DefaultEntryPoint)
	require.Len(t, regs, 3)
	// producers: sizeof(i32), sizeof(i64); ids restart for the allocator
	require.Equal(t, int64(4), intArg(t, regs[0], 1))
	require.Equal(t, int64(1), intArg(t, regs[0], 3))
	require.Equal(t, int64(8), intArg(t, regs[1], 1))
	require.Equal(t, int64(2), intArg(t, regs[1], 3))
	require.Equal(t, int64(16), intArg(t, regs[2], 1))
	require.Equal(t, int64(1), intArg(t, regs[2], 3))

	require.Equal(t, "main:x:4\x00", globalText(t, m, ".nondet.name.1"))
	require.Equal(t, "main:y:5\x00", globalText(t, m, ".nondet.name.2"))
	require.Equal(t, "main:dynalloc:6\x00", globalText(t, m, ".dynalloc.name.1"))

	names := make([]string, 0, len(res.Sites))
	for _, s := range res.Sites {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"main:x:4", "main:y:5", "main:dynalloc:6"}, names)

	// every former use now reads the slot
	insts := m.Funcs[0].Blocks[0].Insts
	var sum *ir.InstAdd
	for _, inst := range insts {
		if add, ok := inst.(*ir.InstAdd); ok {
			sum = add
		}
	}
	require.NotNil(t, sum)
	_, ok := sum.X.(*ir.InstLoad)
	require.True(t, ok, "add lhs is %T", sum.X)

	// alloca, bitcast, registration, load, in that order
	require.IsType(t, &ir.InstAlloca{}, insts[0])
	require.IsType(t, &ir.InstBitCast{}, insts[1])
	require.IsType(t, &ir.InstCall{}, insts[2])
	require.IsType(t, &ir.InstLoad{}, insts[3])
	require.NotEmpty(t, regs[0].Metadata, "registration keeps the call's !dbg")

	// the allocator registration follows the allocation directly
	for i, inst := range insts {
		if call, ok := inst.(*ir.InstCall); ok && call == callsTo(m, "malloc")[0] {
			require.Same(t, regs[2], insts[i+1])
			require.Equal(t, insts[i], regs[2].Args[0], "i8* result is passed without a cast")
		}
	}

	entry := findFunc(m, DefaultEntryPoint)
	require.NotNil(t, entry)
	require.Empty(t, entry.Blocks)
	require.True(t, entry.Sig.Equal(types.NewFunc(types.Void, types.I8Ptr, types.I64, types.I8Ptr, types.I32)), "entry is %s", entry.Sig)

	g := findGlobal(m, ".nondet.name.1")
	require.True(t, g.Immutable)
	require.Equal(t, enum.LinkagePrivate, g.Linkage)
}

func TestRunCallocMultipliesArguments(t *testing.T) {
	m := parse(t, callocIR)
	res, err := New(Options{}).Run(context.Background(), m)
	require.NoError(t, err)
	require.True(t, res.Changed)

	insts := m.Funcs[0].Blocks[0].Insts
	require.Len(t, insts, 5)
	mul, ok := insts[2].(*ir.InstMul)
	require.True(t, ok, "inst after calloc is %T", insts[2])
	require.Equal(t, insts[0], mul.X)

	regs := callsTo(m, DefaultEntryPoint)
	require.Len(t, regs, 1)
	require.Equal(t, mul, regs[0].Args[1])
	require.Equal(t, "table:dynalloc:0\x00", globalText(t, m, ".dynalloc.name.1"))
}

func TestRunWidensNarrowAllocatorSize(t *testing.T) {
	m := parse(t, `target triple = "x86_64-unknown-linux-gnu"

define void @g(i32 %n) {
entry:
  %buf = call i32* @malloc(i32 %n)
  ret void
}

declare i32* @malloc(i32)
`)
	_, err := New(Options{}).Run(context.Background(), m)
	require.NoError(t, err)

	insts := m.Funcs[0].Blocks[0].Insts
	require.IsType(t, &ir.InstZExt{}, insts[1])
	require.IsType(t, &ir.InstBitCast{}, insts[2])
	regs := callsTo(m, DefaultEntryPoint)
	require.Len(t, regs, 1)
	require.Equal(t, insts[1], regs[0].Args[1])
	require.Equal(t, insts[2], regs[0].Args[0])
}

func TestRunWithoutDebugInfoNeedsNoSource(t *testing.T) {
	m := parse(t, noDebugIR)
	bag := diag.NewBag(32)
	res, err := New(Options{Reporter: diag.BagReporter{Bag: bag}}).Run(context.Background(), m)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, 2, bag.Count(diag.NameNoDebugLoc))

	// identical names still get distinct globals and ids
	require.Equal(t, "f:--:0\x00", globalText(t, m, ".nondet.name.1"))
	require.Equal(t, "f:--:0\x00", globalText(t, m, ".nondet.name.2"))
	regs := callsTo(m, DefaultEntryPoint)
	require.Len(t, regs, 2)
	require.Equal(t, int64(1), intArg(t, regs[0], 3))
	require.Equal(t, int64(2), intArg(t, regs[1], 3))
	require.NotSame(t, regs[0].Args[2], regs[1].Args[2])
}

func TestRunUnrecoveredNameUsesSentinel(t *testing.T) {
	m := parse(t, progIR)
	src := strings.Replace(progSource, "int x = __VERIFIER_nondet_int();", "int x; x = (int) __VERIFIER_nondet_int();", 1)
	bag := diag.NewBag(32)
	_, err := New(Options{SourcePath: writeSource(t, src), Reporter: diag.BagReporter{Bag: bag}}).Run(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, "main:--:4\x00", globalText(t, m, ".nondet.name.1"))
	require.Equal(t, 1, bag.Count(diag.NameNotRecovered))
}

func TestRunLeavesUnrelatedModuleAlone(t *testing.T) {
	src := `define i32 @main() {
entry:
  %v = call i32 @rand()
  ret i32 %v
}

declare i32 @rand()
`
	m := parse(t, src)
	before := m.String()
	res, err := New(Options{SourcePath: "/nonexistent.c"}).Run(context.Background(), m)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, before, m.String())
}

func TestRunIgnoresDefinedAllocator(t *testing.T) {
	src := `define i8* @malloc(i64 %n) {
entry:
  ret i8* null
}

define i8* @user() {
entry:
  %p = call i8* @malloc(i64 8)
  ret i8* %p
}
`
	m := parse(t, src)
	res, err := New(Options{}).Run(context.Background(), m)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Empty(t, callsTo(m, DefaultEntryPoint))
}

func TestSecondRunIsNoop(t *testing.T) {
	m := parse(t, progIR)
	path := writeSource(t, progSource)
	_, err := New(Options{SourcePath: path}).Run(context.Background(), m)
	require.NoError(t, err)

	again := parse(t, m.String())
	before := again.String()
	res, err := New(Options{SourcePath: path}).Run(context.Background(), again)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, before, again.String())
}

func TestRunResetsCountersBetweenModules(t *testing.T) {
	p := New(Options{})
	for i := 0; i < 2; i++ {
		m := parse(t, noDebugIR)
		res, err := p.Run(context.Background(), m)
		require.NoError(t, err)
		require.Equal(t, uint32(1), res.Sites[0].ID)
		require.NotNil(t, findGlobal(m, ".nondet.name.1"))
	}
}

func TestFatalErrorsLeaveModuleUntouched(t *testing.T) {
	cases := []struct {
		name    string
		ir      string
		opts    Options
		wantErr error
	}{
		{
			name:    "no source path",
			ir:      progIR,
			opts:    Options{},
			wantErr: ErrNoSourcePath,
		},
		{
			name:    "missing source",
			ir:      progIR,
			opts:    Options{SourcePath: "/does/not/exist/prog.c"},
			wantErr: ErrSourceUnavailable,
		},
		{
			name:    "entry point with wrong type",
			ir:      noDebugIR + "\ndeclare void @klee_make_nondet(i8*, i32, i8*, i32)\n",
			opts:    Options{},
			wantErr: ErrEntryPointSignature,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := parse(t, tc.ir)
			before := m.String()
			_, err := New(tc.opts).Run(context.Background(), m)
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, before, m.String())
		})
	}
}

func TestTruncatedSourceIsFatal(t *testing.T) {
	m := parse(t, progIR)
	before := m.String()
	_, err := New(Options{SourcePath: writeSource(t, "int main(void) {\n")}).Run(context.Background(), m)
	var trunc *TruncatedSourceError
	require.True(t, errors.As(err, &trunc), "err = %v", err)
	require.Equal(t, []uint32{4, 5, 6}, trunc.Missing)
	require.Equal(t, before, m.String())
}

func TestRunReusesExistingEntryPoint(t *testing.T) {
	m := parse(t, noDebugIR+"\ndeclare void @klee_make_nondet(i8*, i64, i8*, i32)\n")
	funcs := len(m.Funcs)
	_, err := New(Options{}).Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, m.Funcs, funcs)
	require.Len(t, callsTo(m, DefaultEntryPoint), 2)
}

func TestRunUsesPointerWidthForSizeType(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   *types.IntType
	}{
		{"x86_64", `target triple = "x86_64-unknown-linux-gnu"`, types.I64},
		{"i386", `target triple = "i386-pc-linux-gnu"`, types.I32},
		{"16-bit pointers", `target datalayout = "e-p:16:16-i32:16-n8:16"`, types.I32},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := parse(t, strings.Replace(noDebugIR, `target triple = "x86_64-unknown-linux-gnu"`, tc.header, 1))
			_, err := New(Options{}).Run(context.Background(), m)
			require.NoError(t, err)
			entry := findFunc(m, DefaultEntryPoint)
			require.NotNil(t, entry)
			require.True(t, entry.Sig.Params[1].Equal(tc.want), "nbytes is %s", entry.Sig.Params[1])
		})
	}
}

func TestRunSkipsVoidProducer(t *testing.T) {
	m := parse(t, `define void @f() {
entry:
  call void @__VERIFIER_nondet_nothing()
  ret void
}

declare void @__VERIFIER_nondet_nothing()
`)
	bag := diag.NewBag(8)
	res, err := New(Options{Reporter: diag.BagReporter{Bag: bag}}).Run(context.Background(), m)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 1, bag.Count(diag.SiteVoidProducer))
}

func TestRunCustomEntryPointAndRegistry(t *testing.T) {
	reg, err := NewRegistry(Pattern{Prefix: "nondet_", Handler: RewriteProducer})
	require.NoError(t, err)
	m := parse(t, `define i8 @f() {
entry:
  %c = call i8 @nondet_char()
  ret i8 %c
}

declare i8 @nondet_char()
`)
	res, err := New(Options{Registry: reg, EntryPoint: "make_symbolic"}).Run(context.Background(), m)
	require.NoError(t, err)
	require.True(t, res.Changed)
	regs := callsTo(m, "make_symbolic")
	require.Len(t, regs, 1)
	require.Equal(t, int64(1), intArg(t, regs[0], 1))
	require.Empty(t, callsTo(m, DefaultEntryPoint))
}

func TestRunHonorsCanceledContext(t *testing.T) {
	m := parse(t, noDebugIR)
	before := m.String()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Run(ctx, m)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, before, m.String())
}

func TestScanOrdersByDeclarationThenProgram(t *testing.T) {
	m := parse(t, `define void @f() {
entry:
  %b1 = call i16 @__VERIFIER_nondet_short()
  %a1 = call i32 @__VERIFIER_nondet_int()
  %b2 = call i16 @__VERIFIER_nondet_short()
  ret void
}

declare i32 @__VERIFIER_nondet_int()

declare i16 @__VERIFIER_nondet_short()
`)
	before := m.String()
	d := Scan(m, nil, "", nil)
	require.Len(t, d.Producers, 3)
	require.Equal(t, "a1", d.Producers[0].Call.Name())
	require.Equal(t, "b1", d.Producers[1].Call.Name())
	require.Equal(t, "b2", d.Producers[2].Call.Name())
	require.Empty(t, d.Lines)
	require.Equal(t, before, m.String())
}
