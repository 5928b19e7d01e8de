// Package sol relays a remote serial console between the operator and the
// chassis manager.
//
// A Channel is one console target (a blade, a serial port, or a local mock
// shell). A Surface is where the operator sits: the local terminal or a
// physical serial line. A Session connects the two with a sender loop and a
// receiver loop that share one active flag, and a Manager keeps at most one
// Session running per process.
//
//	mgr := sol.NewManager(sol.Options{})
//	s, err := mgr.Start(ctx, &sol.BladeConsole{Service: client, BladeID: 3}, surface, false)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(s.Wait().Message())
package sol
