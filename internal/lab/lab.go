// Package lab holds the stateless numeric helpers used by the clinical
// layers: turnaround time, quality-control z-scores, delta checks and result
// flagging. None of them touch storage or hold state.
package lab

import (
	"math"
	"time"
)

type TATStatus string

const (
	TATOnTime        TATStatus = "on-time"
	TATDelayed       TATStatus = "delayed"
	TATCriticalDelay TATStatus = "critical-delay"
)

type TATResult struct {
	Hours         float64
	BusinessHours float64
	Status        TATStatus
}

// TurnaroundTime computes elapsed hours between collection and completion.
// With excludeWeekends, business hours count 8 per business day.
func TurnaroundTime(collectedAt, completedAt time.Time, excludeWeekends bool) TATResult {
	hours := completedAt.Sub(collectedAt).Hours()

	businessHours := hours
	if excludeWeekends {
		businessHours = float64(businessDays(collectedAt, completedAt)) * 8
	}

	status := TATOnTime
	if businessHours > 48 {
		status = TATCriticalDelay
	} else if businessHours > 24 {
		status = TATDelayed
	}

	return TATResult{Hours: hours, BusinessHours: businessHours, Status: status}
}

func businessDays(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}

	days := 0
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

type ViolationLevel string

const (
	ViolationNone         ViolationLevel = "none"
	ViolationWarning      ViolationLevel = "warning"
	ViolationOutOfControl ViolationLevel = "out-of-control"
)

type ZScoreResult struct {
	ZScore         float64
	IsInControl    bool
	ViolationLevel ViolationLevel
}

// ZScore evaluates a QC measurement against its target mean and standard
// deviation. Westgard-style bands: warning beyond 2 SD, out of control
// beyond 3 SD. A zero SD yields an in-control zero score.
func ZScore(measured, targetMean, standardDeviation float64) ZScoreResult {
	if standardDeviation == 0 {
		return ZScoreResult{IsInControl: true, ViolationLevel: ViolationNone}
	}

	score := (measured - targetMean) / standardDeviation
	abs := math.Abs(score)

	result := ZScoreResult{
		ZScore:         round(score, 3),
		IsInControl:    true,
		ViolationLevel: ViolationNone,
	}
	if abs > 3 {
		result.IsInControl = false
		result.ViolationLevel = ViolationOutOfControl
	} else if abs > 2 {
		result.ViolationLevel = ViolationWarning
	}

	return result
}

type DeltaDirection string

const (
	DeltaIncreased DeltaDirection = "increased"
	DeltaDecreased DeltaDirection = "decreased"
	DeltaStable    DeltaDirection = "stable"
)

type DeltaCheckResult struct {
	PercentChange  float64
	AbsoluteChange float64
	IsDeltaAlert   bool
	Direction      DeltaDirection
}

// DeltaCheck compares a result with the patient's previous value. The alert
// fires when the percent change exceeds the threshold (default 20 when the
// caller passes 0). Direction bands at ±5%.
func DeltaCheck(current, previous, thresholdPercent float64) DeltaCheckResult {
	if thresholdPercent <= 0 {
		thresholdPercent = 20
	}

	if previous == 0 {
		return DeltaCheckResult{
			AbsoluteChange: current,
			IsDeltaAlert:   current != 0,
			Direction:      DeltaStable,
		}
	}

	absolute := current - previous
	percent := absolute / previous * 100

	direction := DeltaStable
	if percent > 5 {
		direction = DeltaIncreased
	} else if percent < -5 {
		direction = DeltaDecreased
	}

	return DeltaCheckResult{
		PercentChange:  round(percent, 2),
		AbsoluteChange: round(absolute, 3),
		IsDeltaAlert:   math.Abs(percent) > thresholdPercent,
		Direction:      direction,
	}
}

type ResultFlag string

const (
	FlagNormal       ResultFlag = "N"
	FlagHigh         ResultFlag = "H"
	FlagLow          ResultFlag = "L"
	FlagCriticalHigh ResultFlag = "HH"
	FlagCriticalLow  ResultFlag = "LL"
)

type FlagResult struct {
	Flag           ResultFlag
	Interpretation string
	IsCritical     bool
}

// ReferenceRange bounds a numeric result. Nil bounds are not checked.
type ReferenceRange struct {
	Low       *float64
	High      *float64
	PanicLow  *float64
	PanicHigh *float64
}

// Flag classifies a value against reference and panic ranges. Panic bounds
// win over reference bounds.
func Flag(value float64, rr ReferenceRange) FlagResult {
	if rr.PanicLow != nil && value <= *rr.PanicLow {
		return FlagResult{Flag: FlagCriticalLow, Interpretation: "Critical Low", IsCritical: true}
	}
	if rr.PanicHigh != nil && value >= *rr.PanicHigh {
		return FlagResult{Flag: FlagCriticalHigh, Interpretation: "Critical High", IsCritical: true}
	}
	if rr.Low != nil && value < *rr.Low {
		return FlagResult{Flag: FlagLow, Interpretation: "Low"}
	}
	if rr.High != nil && value > *rr.High {
		return FlagResult{Flag: FlagHigh, Interpretation: "High"}
	}

	return FlagResult{Flag: FlagNormal, Interpretation: "Normal"}
}

func round(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
