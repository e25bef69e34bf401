// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for code that
// schedules work: bootstrap retry timers, /sync backoff, default
// timestamps on reconstructed invite events.
//
// Production code receives Real(). Tests receive Fake(), which stands
// still until Advance is called and fires due timers in deadline
// order:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session := newSession(fake)
//	session.Start(ctx)          // fails, schedules a retry
//	fake.WaitForTimers(1)       // retry timer registered
//	fake.Advance(10 * time.Second)
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing time past it.
package clock
