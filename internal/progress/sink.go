package progress

import "context"

// Sink consumes batches of lifecycle events. Implementations must be safe
// for repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so the
// task engine stays agnostic about how events are buffered or delivered.
type Emitter interface {
	Emit(evt Event)
}
