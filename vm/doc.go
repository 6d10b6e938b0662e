// Package vm implements the indy method-linking core.
//
// This package contains:
//   - Interned method signatures and the adaptability relation
//   - Symbolic member references and their resolution
//   - Lambda forms: straight-line programs over primitive functions,
//     interpreted until hot and then compiled
//   - Species: carrier classes for bound method handles, generated once per
//     shape and defined through the class table
//   - Direct, bound, adapted and invoker method handles
//   - The bootstrap invoker and the call-site linker
//   - The resolution trace replayed by the ahead-of-time archiver
package vm
