package metrics

// Package metrics defines the events recorded by observability sinks and the
// recorder interfaces they implement. Sinks like PromSink and InfluxSink in
// infra/metrics record dispatch decisions, acknowledgments, position samples
// and route changes, and can be combined with NewMultiSink. A sink only needs
// to implement the recorders it supports; callers type-assert the optional
// ones.
