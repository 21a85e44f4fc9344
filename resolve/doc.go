// Package resolve builds import resolution plans.
//
// # Provider Precedence
//
//  1. Explicit links made with .link (function, renamed or interface links)
//  2. Exports of other instantiated components, in load order
//  3. Exports of dynamic adapters, in the order they were added
//
// Signatures are compared structurally: aliases are looked through and
// parameter names are ignored. A provider whose export has the right name
// but the wrong shape is never accepted.
//
// # Example
//
//	plan := resolve.Resolve(resolve.Input{
//		Target:     resolve.Provider{Name: "main", Store: store},
//		Components: providers,
//	})
//	if err := plan.Err(); err != nil {
//		fmt.Println(err)
//	}
package resolve
