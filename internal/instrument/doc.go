// Package instrument rewrites LLVM IR modules so that a symbolic execution
// engine can observe nondeterministic inputs and heap allocations.
//
// Calls to undefined producer declarations (by default anything starting
// with __VERIFIER_nondet_) are replaced by a stack slot that is registered
// with the engine and then read back. Calls to allocators (malloc, calloc)
// keep their result but gain a trailing registration of the returned block.
//
// A Pass first discovers every call site without touching the module, then
// resolves source lines and layouts, and only then mutates. Errors raised
// before mutation leave the module exactly as it was.
package instrument
