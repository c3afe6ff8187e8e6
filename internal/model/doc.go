package model

// Package model defines the domain data shared by the engine: batch tasks and
// their state machine, parsed input lines, media resources and streams, the
// error taxonomy, and batch summaries. Structures carry no synchronization;
// callers own concurrency and hand out copies via Snapshot.
