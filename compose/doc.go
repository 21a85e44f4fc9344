// Package compose implements .compose: statically binding an adapter into
// the active component.
//
// The sequence is merge, introspect, parse, stage, replace. Staging
// resolves the composite's imports and instantiates it while the previous
// instance keeps running, so a failed merge, an unreadable composite or a
// composite that does not instantiate leaves the previous component and its
// instance in place. After the replace the composite is the component,
// whether or not its plan is total.
package compose
