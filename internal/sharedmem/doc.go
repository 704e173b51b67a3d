// Package sharedmem implements the action record lifecycle that agents use
// to coordinate through a shared store.
//
// A record lives under "namespace:agentId:actionId". It is created active by
// [Memory.SetAction] and moves once to completed ([Memory.CompleteAction]) or
// stopped ([Memory.StopAction]). Records disappear through store expiry or a
// retention sweep ([Memory.Sweep], [Memory.CleanupOldActions]); nothing else
// deletes them.
//
// Every mutation is a read-modify-write with no compare-and-swap. Two
// concurrent completions of one record race and the later write wins. This
// is intentional: stage ownership checks upstream keep one writer per record.
//
// [Memory.WaitForDependency] is the only blocking operation. It polls at
// [DefaultPollInterval] until the awaited record completes or the timeout
// passes, and never writes the awaited record.
package sharedmem
