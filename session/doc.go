// Package session ties the REPL together: it owns the component registry,
// the links made with .link and the variable scope, and runs input lines.
//
// # Lifecycle
//
// The target component is loaded first. It is instantiated only when a
// resolution plan covers every import; until then its exports cannot be
// called and .imports shows what is missing. Providers (.load, .link) and
// adapters (.adapter) are instantiated as soon as their own imports resolve,
// and a waiting target is retried after each of them is added.
//
// # Usage
//
//	s := session.New(session.Config{Engine: eng, Merger: merge.New()})
//	defer s.Close(ctx)
//
//	if _, err := s.LoadTarget(ctx, "app.wasm", ""); err != nil {
//		return err
//	}
//	if _, err := s.Resolve(ctx); err != nil {
//		fmt.Println(err) // partial plan; the session is still usable
//	}
//	for line := range lines {
//		if err := s.Exec(ctx, os.Stdout, line); err != nil {
//			fmt.Println(err)
//		}
//		if s.Done() {
//			break
//		}
//	}
package session
