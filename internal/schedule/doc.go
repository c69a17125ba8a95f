// Package schedule manages per-device dose schedules and their
// propagation to dispensers.
//
// A schedule is a whole-set document: the admin surface always writes
// the complete entry list, and devices always receive the complete
// list. There are no per-entry updates or deltas, so a device can
// never hold a half-applied schedule.
//
// SQLite is the source of truth. After each write the set is mirrored
// to the device's retained MQTT topic (QoS 1), so a dispenser that
// reconnects after an outage immediately receives the latest set
// without Core doing anything. The publish runs in the background with
// bounded retries; a broker outage delays propagation but never fails
// or rolls back the write that already committed. Exhausted retries
// raise a delivery-risk alarm.
package schedule
