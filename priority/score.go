package priority

import (
	"math"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
)

// Weights shape the priority score.
type Weights struct {
	// DueSoonBand is the score of a task due right now. Tasks due later
	// decay from it with time constant DueDecay; overdue tasks start at
	// the band and grow by OverduePerDay up to OverdueCap.
	DueSoonBand   float64
	DueDecay      time.Duration
	OverduePerDay float64
	OverdueCap    float64

	// NoDueDate scores tasks without a due date.
	NoDueDate float64

	InProgress float64
	Open       float64
	Blocked    float64

	// Importance scales the [0, 1] importance inherited from memories.
	Importance float64
}

// DefaultWeights holds the default score shape.
var DefaultWeights = Weights{
	DueSoonBand:   100,
	DueDecay:      7 * 24 * time.Hour,
	OverduePerDay: 2,
	OverdueCap:    30,
	NoDueDate:     10,
	InProgress:    1.2,
	Open:          1.0,
	Blocked:       0.5,
	Importance:    20,
}

// Input is everything the score depends on.
type Input struct {
	Status     core.TaskStatus
	DueAt      *time.Time
	Importance float64
}

// Score derives a task priority. It is a pure function of its inputs:
// non-increasing in the time until due, with every overdue task at or
// above the due-soon band before status and importance are applied.
func Score(in Input, now time.Time, w Weights) float64 {
	if in.Status == core.StatusDone {
		return 0
	}

	due := w.NoDueDate
	if in.DueAt != nil {
		days := in.DueAt.Sub(now).Hours() / 24
		if days <= 0 {
			due = w.DueSoonBand + math.Min(-days*w.OverduePerDay, w.OverdueCap)
		} else {
			decay := w.DueDecay.Hours() / 24
			if decay <= 0 {
				decay = 7
			}
			due = w.DueSoonBand * math.Exp(-days/decay)
		}
	}

	mult := w.Open
	switch in.Status {
	case core.StatusInProgress:
		mult = w.InProgress
	case core.StatusBlocked:
		mult = w.Blocked
	}

	importance := math.Max(0, math.Min(1, in.Importance))
	return round(due*mult + importance*w.Importance)
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
