// Package task implements the deferred-operation engine behind the task
// sub-domain.
//
// A submission is canonicalized into a facility.TaskCommand, stored as a
// pending Task and then executed either inline or by the worker pool. The
// Dispatcher routes the command through a static table to the bound
// sub-domain adapter and turns whatever happens, including unknown commands,
// backend errors and panics, into a terminal Outcome. Failures are recorded
// as task results rather than returned to the submitter.
//
// Lifecycle:
//
//	pending -> active -> completed | failed
//	pending | active -> canceled
//
// Stores reject every transition that does not move strictly forward, so a
// poller never observes a task going backwards.
package task
