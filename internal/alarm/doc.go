// Package alarm provides the append-only alarm event log.
//
// Two producers write to it: devices reporting dose outcomes and
// hardware faults through the event endpoint, and the engine itself
// flagging operational conditions (a device pinned to a missing OTA
// target, a schedule publish that exhausted its retries). Events are
// never updated or deleted; the log is the operator's timeline.
//
// Severities are a closed set: info, warning, critical.
package alarm
