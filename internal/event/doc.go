// Package event carries observations out of the controller.
//
// The control loop, the irrigation sequencer and the light scheduler report
// what happens as Event values to a Sink. Sinks never feed back into control
// decisions and never return errors to the caller; each one reports its own
// delivery failures.
//
// # Sinks
//
//   - LogSink: structured log lines
//   - MQTTSink: grow/event/... topics and the retained site status
//   - TelemetrySink: readings, alerts and cycles to InfluxDB
//   - SQLiteHistory: append-only audit log, queried by the status API
//   - Metrics: Prometheus collectors
//   - Recorder: in-memory, for tests and the status API
//
// Fanout combines them:
//
//	sink := event.Fanout{event.NewLogSink(logger), history, metrics}
//	sink.Emit(ctx, event.DeviceFault(ref, err, now))
package event
