// Package ota decides, on each heartbeat, whether a dispenser should
// upgrade its firmware.
//
// The decision is an ordered table evaluated against the device record
// and the firmware registry: only active devices with OTA enabled and
// a pinned target version are considered; a device already running the
// target is acknowledged up-to-date; everything else yields an upgrade
// instruction carrying the version, content hash, size, and download
// URL. The device verifies the hash before flashing.
//
// Decide is deliberately side-effect free on the device: deciding
// twice for the same inputs yields the same verdict, and a lookup
// failure withholds the upgrade rather than guessing. The one piece of
// held state is an alarm rate limiter, so a missing target raises one
// operator alarm per target change instead of one per heartbeat.
package ota
