// Package merge writes composite binaries: a target component with an
// adapter component bound in to serve its imports.
//
// The composite is a core module holding three custom sections: the merged
// interface ("component-wit"), and the untouched target and adapter binaries.
// The engine instantiates the adapter first and routes the target's imports
// to it. Merge only decides whether the pair fits and what the composite's
// interface is:
//
//   - a target import is satisfied by the adapter export with the same
//     qualified name, which must have an equal signature
//   - imported interfaces are satisfied as a whole or not at all
//   - residual imports are the target's unsatisfied imports plus the
//     adapter's own imports
//   - exports are the union, target first
//
// Every failure is an errors.KindMerge error.
package merge
