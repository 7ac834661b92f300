package saga

// Recorder receives orchestration counters. Implemented by the metrics
// manager; a nop recorder is used when metrics are disabled.
type Recorder interface {
	RecordSagaStarted(kind string)
	RecordSagaFinished(kind, result string)
	RecordCompensation(kind string)
	RecordDuplicateDrop()
	RecordUnknownSagaDrop()
	RecordExpiry()
}

// NopRecorder discards all counters.
type NopRecorder struct{}

func (NopRecorder) RecordSagaStarted(kind string)          {}
func (NopRecorder) RecordSagaFinished(kind, result string) {}
func (NopRecorder) RecordCompensation(kind string)         {}
func (NopRecorder) RecordDuplicateDrop()                   {}
func (NopRecorder) RecordUnknownSagaDrop()                 {}
func (NopRecorder) RecordExpiry()                          {}
