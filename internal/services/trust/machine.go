package trust

import (
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
)

type State string

const (
	StateNormal State = "NORMAL"
	StateWarned State = "WARNED"
	StateLocked State = "LOCKED"
)

type Effect string

const (
	EffectWarned Effect = "warned"
	EffectLocked Effect = "locked"
	// EffectIgnored is a violation that arrived while the lockout was running.
	EffectIgnored Effect = "ignored"
)

type Policy struct {
	SpamFlagThreshold int
	LockoutDuration   time.Duration
}

// StateOf derives the state at now. An expired lockout reads as NORMAL or WARNED
// without anything being written.
func StateOf(rec model.TrustRecord, now time.Time) State {
	if rec.SpamSuspendedUntil != nil && rec.SpamSuspendedUntil.After(now) {
		return StateLocked
	}
	if rec.SpamWarnings > 0 {
		return StateWarned
	}
	return StateNormal
}

// Transition applies one confirmed violation.
//
//	NORMAL/WARNED -> WARNED  warnings+1 below the threshold
//	NORMAL/WARNED -> LOCKED  threshold reached: until = now+lockout, warnings = 0
//	LOCKED        -> LOCKED  no-op, the running lockout is not extended
func Transition(rec model.TrustRecord, _ enums.ViolationKind, now time.Time, p Policy) (model.TrustRecord, Effect) {
	if StateOf(rec, now) == StateLocked {
		return rec, EffectIgnored
	}

	next := rec
	next.SpamWarnings = rec.SpamWarnings + 1
	if next.SpamWarnings >= p.SpamFlagThreshold {
		until := now.Add(p.LockoutDuration).UTC()
		next.SpamSuspendedUntil = &until
		next.SpamWarnings = 0
		return next, EffectLocked
	}
	return next, EffectWarned
}
