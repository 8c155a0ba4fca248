// Package domain models the hazard and fleet data of a monitored site (e.g. a mine).
//
// # Tenancy
//
// Every persisted record belongs to exactly one tenant, the facility operator
// account. Lookups are always scoped by tenant id; a caller can never observe
// another tenant's nodes or vehicles, even when registration numbers collide.
//
// # Severity classification
//
// Readings are classified into three ordered tiers, Yellow < Orange < Red.
// The thresholds are fixed by the sensor semantics:
//
//	Methane (concentration fraction):
//	  <0.01 invalid | [0.01, 0.75] Yellow | (0.75, 1.25] Orange | >1.25 Red
//	WorkerDistress (cumulative button presses):
//	  1 Yellow | 2 Orange | >=3 Red | anything else invalid
//	Temperature (degrees):
//	  <27.5 Yellow | [27.5, 32.5] Orange | >32.5 Red
//
// Band edges belong to the lower band (0.75 is Yellow, 1.25 is Orange).
// Temperature has no floor: a reading of -40 is Yellow. See [Classify].
//
// # Event log
//
// A SafetyNode owns an append-only sequence of ClassifiedEvents. Events are
// stamped with server time at append, never reordered, mutated or deleted.
//
// # Destination input
//
// Tracking and directions callers describe a destination in several shapes:
// a provider place reference, or a coordinate pair under one of many field
// names (lat, latitude, destLat, ...). The accepted names live in ordered alias
// tables in destination.go; the first present key wins and matching is
// case-sensitive. A place reference always beats a coordinate pair.
package domain
