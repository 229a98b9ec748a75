// Package facility defines the facility-agnostic domain model shared by every
// sub-domain of the API: the capability contracts a backend must satisfy, the
// request and response models they exchange, and the deferred-task command
// model used by the task engine.
//
// Nothing in this package performs I/O. Backends live in their own packages
// (see internal/demo) and are bound to sub-domains by internal/adapter.
package facility
