// Package registry holds named values for the recovery engine.
//
// A Registry remembers the order keys were first registered in. Sorted
// ranks a snapshot by an explicit comparison and falls back to that order
// only for ties the comparison leaves open. The recovery engine breaks
// priority ties by name, so registration order never decides a plan:
//
//	r := registry.New[string, Strategy]()
//	r.Register("auto-save", autoSave)
//	r.Register("hard-reset", hardReset)
//
//	ordered := r.Sorted(func(a, b Strategy) int {
//	    if c := cmp.Compare(a.Priority(), b.Priority()); c != 0 {
//	        return c
//	    }
//	    return cmp.Compare(a.Name(), b.Name())
//	})
//
// Re-registering a key swaps its value in place. Keys, Values and Sorted
// return copies that later mutations do not touch.
package registry
