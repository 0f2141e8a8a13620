// Package scheduler implements a keyed, cancellable delayed-task scheduler.
//
// At most one task is pending per key. Scheduling a key again supersedes the
// previous task. A fired task receives its Handle and must Claim it while
// holding the locks of the entities it mutates; Claim fails when the handle
// was cancelled or superseded in the meantime, which turns a late callback
// into a guaranteed no-op.
package scheduler
