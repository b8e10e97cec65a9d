// Package timeouts defines shared timeout constants used across the bot
// runtime. Centralizing these values prevents drift between the daemon loops
// and the storage claim/lease paths and makes the durations discoverable.
package timeouts

import "time"

// RuntimeLockTTL is the lease duration for the singleton poster runtime lock.
const RuntimeLockTTL = 90 * time.Second

// ScheduleClaimLease caps how long a claimed scheduled post stays invisible
// to other workers before the claim is considered abandoned.
const ScheduleClaimLease = 2 * time.Minute

// MaintenanceSweep is the default interval between daemon maintenance passes.
const MaintenanceSweep = 30 * time.Second

// ConfigWatch is the default interval between config version polls.
const ConfigWatch = 15 * time.Second

// Shutdown limits how long the daemon waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
