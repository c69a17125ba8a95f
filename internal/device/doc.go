// Package device provides the Device Registry for PillFleet Core.
//
// The Device Registry is the central catalogue of every dispenser
// appliance in the fleet. It manages registration and credential
// issuance, the administrative lifecycle state machine, heartbeat fact
// intake, and derived liveness.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        Device Registry                           │
//	│                                                                  │
//	│  ┌────────────────┐   ┌──────────────────┐   ┌────────────────┐  │
//	│  │    Registry    │   │    Repository    │   │   Validation   │  │
//	│  │ (registry.go)  │──▶│ (repository.go)  │   │ (validation.go)│  │
//	│  │                │   │                  │   │                │  │
//	│  │ • Lifecycle    │   │ • SQLite queries │   │ • MAC checks   │  │
//	│  │ • Cache        │   │ • Heartbeat path │   │ • Name checks  │  │
//	│  │ • Lock stripes │   │                  │   │                │  │
//	│  └────────────────┘   └──────────────────┘   └────────────────┘  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Key Concepts
//
//   - AdminState: pending | active | suspended | blocked. Set by
//     operators only; any state may move to any other.
//   - Liveness: online/offline is derived from last_seen at read time
//     against the staleness threshold. It is never stored.
//   - API keys: issued once at registration. Only the SHA-256 hash plus
//     a masked prefix/suffix survive; the raw key is unrecoverable.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo, cfg.Fleet.Staleness())
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Register a new dispenser; the raw key is shown exactly once
//	dev, rawKey, err := registry.Register(ctx, "aa:bb:cc:dd:ee:ff", "Ward 3 dispenser")
//
//	// Heartbeat hot path
//	dev, err = registry.Authenticate(ctx, presentedKey)
//	err = registry.ReportHeartbeat(ctx, dev.ID, facts)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Heartbeats and mutations for
// the same device serialise on a mutex stripe; devices on different
// stripes proceed in parallel. There is no global cross-device lock.
package device
