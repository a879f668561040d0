package batch

import (
	"log/slog"

	"platen/internal/logging"
	"platen/internal/pipeline"
)

// Event describes one sheet reaching a terminal stage within a batch.
type Event struct {
	BatchID    string
	SheetID    string
	SourcePath string
	Terminal   pipeline.Stage
	// Completed counts terminal sheets so far, Total the batch size.
	Completed int
	Total     int
	Err       string
}

// Observer receives per-sheet progress. Implementations must not assume any
// ordering beyond "one event per sheet"; slow observers lose events rather
// than slowing the batch.
type Observer interface {
	OnSheetDone(Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnSheetDone(event Event) { f(event) }

const defaultObserverBuffer = 16

// progressSink decouples observer delivery from batch progress: events flow
// through a bounded channel drained by one consumer goroutine, overflow is
// dropped, and observer panics are contained.
type progressSink struct {
	observer Observer
	events   chan Event
	drained  chan struct{}
	logger   *slog.Logger
}

func newProgressSink(observer Observer, buffer int, logger *slog.Logger) *progressSink {
	if observer == nil {
		return nil
	}
	if buffer < 1 {
		buffer = defaultObserverBuffer
	}
	sink := &progressSink{
		observer: observer,
		events:   make(chan Event, buffer),
		drained:  make(chan struct{}),
		logger:   logger,
	}
	go sink.consume()
	return sink
}

func (s *progressSink) consume() {
	defer close(s.drained)
	for event := range s.events {
		s.deliver(event)
	}
}

func (s *progressSink) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("progress observer panicked",
				logging.String(logging.FieldSheetID, event.SheetID),
				logging.Any("panic", r))
		}
	}()
	s.observer.OnSheetDone(event)
}

// publish never blocks; a full buffer drops the event.
func (s *progressSink) publish(event Event) {
	if s == nil {
		return
	}
	select {
	case s.events <- event:
	default:
		s.logger.Debug("progress event dropped",
			logging.String(logging.FieldSheetID, event.SheetID))
	}
}

// close stops intake and waits for buffered events to be delivered.
func (s *progressSink) close() {
	if s == nil {
		return
	}
	close(s.events)
	<-s.drained
}
