// Package ir defines the typed, basic-block intermediate representation that
// sits between type-checked source and generated code.
//
// This package contains type definitions, a printer and a structural
// validator. It imports only internal/types, so every later stage (builder,
// refcount pass, codegen) can depend on it without cycles.
//
// Key design constraints:
//   - Every Value has exactly one static type for its whole lifetime
//   - Temps are defined by exactly one Op; Registers are written only by Assign
//   - Every BasicBlock ends with exactly one Terminator and nothing follows it
//   - A Function is built once, rewritten once by the refcount pass, then frozen
package ir
