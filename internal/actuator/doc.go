// Package actuator provides mutual exclusion over shared physical resources.
//
// A single irrigation arm, pump and tank serve several water stations. Locks
// guarantees that at most one operation drives a given resource at a time:
//
//	guard, err := locks.Acquire(ctx, owner,
//	    device.Ref{Kind: device.KindArm, ID: 1},
//	    device.Ref{Kind: device.KindPump, ID: 1},
//	    device.Ref{Kind: device.KindTank, ID: 1},
//	)
//	if err != nil {
//	    return err // ErrResourceBusy or ErrReentrantLock
//	}
//	defer guard.Release()
//
// Requests are reordered into a fixed global order (Arm < Pump < Tank, then
// id), so overlapping requests from different stations cannot deadlock.
// There is one lock object per resource; unrelated resources never contend.
package actuator
