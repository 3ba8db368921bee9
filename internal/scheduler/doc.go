// Package scheduler owns the run loop that turns a schedule document into
// actual delivery runs.
//
// # State machine
//
// Idle -> Planning -> Armed -> Executing -> Planning, with Stopped reachable
// from anywhere via Stop(). A single loop goroutine owns the (at most one)
// pending timer: arming always invalidates the previous timer first, and a
// fired run executes to completion - retry loop and re-plan included -
// before the next timer can exist.
//
// # Planning and execution
//
// Planning resolves the next run from the schedule store. No next run within
// the horizon arms a coarse re-check; a store error arms a short retry; a
// concrete target arms a timer for max(0, target-now).
//
// Execution consults the workday oracle (non-override runs only), polls the
// delivery channel's connectivity with a bounded retry budget, performs the
// bulk send, consumes a fired override, and re-plans with a reason tag.
// Failures inside execution never crash the process; they become re-plans.
//
// ForceReschedule is safe from any state and is honored as soon as the
// current execution step (if any) completes.
package scheduler
