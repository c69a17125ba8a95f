// Package command provides the per-device command queue for PillFleet Core.
//
// Devices are polling clients: they cannot be pushed to reliably, so
// operators enqueue commands here and each device collects its pending
// commands when it next heartbeats.
//
// # Delivery Semantics
//
// At-most-once, deliberately. A drain returns every undelivered command
// in enqueue order and marks it delivered in the same transaction; a
// command that the device then loses is NOT re-delivered. For a
// medication dispenser, a duplicated command (a second dispense, a
// second factory reset) is worse than a lost one — operators re-issue
// lost commands explicitly.
//
// Delivered commands are retained for audit and visible via History.
//
// # Usage
//
//	queue := command.NewQueue(command.NewSQLiteRepository(db.DB))
//	queue.SetLogger(log)
//
//	cmd, err := queue.Enqueue(ctx, deviceID, command.TypeReboot, "")
//
//	// On heartbeat:
//	pending, err := queue.Drain(ctx, deviceID)
package command
