package core

import "fmt"

// Native iteration weight of one unit of each step, and the estimated number
// of homomorphic operations one unit performs. The scheduler prices work with
// these constants; the two budgets are deliberately independent because a
// homomorphic operation costs orders of magnitude more than the bookkeeping
// around it.
const (
	validationUnitWeight   = 2
	rankingUnitWeight      = 3
	allocationUnitWeight   = 2
	reverseIndexUnitWeight = 1

	validationUnitHomOps   = 8
	rankingUnitHomOps      = 16
	allocationUnitHomOps   = 10
	reverseIndexUnitHomOps = 3
)

type stepDesc struct {
	weight     uint64
	homCost    uint64
	totalUnits func(e *Engine) int
	run        func(e *Engine, maxUnits int) (int, error)
}

var stepTable = [numSteps]stepDesc{
	StepValidation: {
		weight:     validationUnitWeight,
		homCost:    validationUnitHomOps,
		totalUnits: validationUnits,
		run:        (*Engine).runValidationUnits,
	},
	StepRanking: {
		weight:     rankingUnitWeight,
		homCost:    rankingUnitHomOps,
		totalUnits: rankingUnits,
		run:        (*Engine).runRankingUnits,
	},
	StepAllocation: {
		weight:     allocationUnitWeight,
		homCost:    allocationUnitHomOps,
		totalUnits: allocationUnits,
		run:        (*Engine).runAllocationUnits,
	},
	StepReverseIndex: {
		weight:     reverseIndexUnitWeight,
		homCost:    reverseIndexUnitHomOps,
		totalUnits: reverseIndexUnits,
		run:        (*Engine).runReverseIndexUnits,
	},
}

// affordable returns how many units fit in budget at costPer each, capped at
// remaining.
func affordable(budget, costPer uint64, remaining int) int {
	q := budget / costPer
	if q >= uint64(remaining) {
		return remaining
	}
	return int(q)
}

// completeStep rolls the pipeline over to the next step and runs the step's
// completion action. Allocation publishes the clearing price and per-rank
// winnings as disclosable to the owner; the reverse index does the same for
// per-position winnings.
func (e *Engine) completeStep(s Step) {
	if s != e.step {
		panic(fmt.Sprintf("core: completing step %v while at %v", s, e.step))
	}
	switch s {
	case StepAllocation:
		if !e.clearing.IsSet() {
			// No bids: the clearing price sentinel is an encrypted zero.
			e.clearing = e.ctx.Zero()
		}
		if e.owner != "" {
			e.ctx.Allow(e.clearing, e.owner)
			for _, w := range e.wonByRank {
				e.ctx.Allow(w, e.owner)
			}
		}
	case StepReverseIndex:
		if e.owner != "" {
			for _, w := range e.wonByPos {
				e.ctx.Allow(w, e.owner)
			}
		}
	}
	e.step++
}

// Advance is the scheduler's unified entry point. It converts an iteration
// budget into bounded units of work across the pipeline, stopping after
// stopAfter (pass StepAllocation to skip the reverse index for blind,
// rank-addressed prize delivery). The per-call homomorphic budget configured
// at construction gates progress independently.
//
// Returned values are the status plus the total-iteration counter before and
// after the call. StatusInsufficientResources means no unit of work could be
// afforded and nothing was mutated; calling again with more budget resumes
// cleanly. Units are atomic: a unit either runs to completion or is not
// started.
func (e *Engine) Advance(iterationBudget uint64, stopAfter Step) (Status, uint64, uint64, error) {
	if !e.reg.closed {
		return StatusNotFinished, e.totalIterations, e.totalIterations, ErrAuctionOpen
	}
	if stopAfter < StepValidation || stopAfter >= StepDone {
		return StatusNotFinished, e.totalIterations, e.totalIterations, ErrOutOfRange
	}

	before := e.totalIterations
	if e.step > stopAfter {
		return StatusFinished, before, before, nil
	}

	homBudget := e.homBudget
	progressed := false

	for e.step <= stopAfter && e.step < StepDone {
		d := &stepTable[e.step]
		total := d.totalUnits(e)
		remaining := total - e.progress[e.step]
		if remaining < 0 {
			panic(fmt.Sprintf("core: step %v progress %d exceeds total %d", e.step, e.progress[e.step], total))
		}
		if remaining == 0 {
			e.completeStep(e.step)
			continue
		}

		units := affordable(iterationBudget, d.weight, remaining)
		if fit := affordable(homBudget, d.homCost, remaining); fit < units {
			units = fit
		}
		if units == 0 {
			if progressed {
				return StatusNotFinished, before, e.totalIterations, nil
			}
			return StatusInsufficientResources, before, e.totalIterations, nil
		}

		done, err := d.run(e, units)
		if done > 0 {
			progressed = true
			cost := uint64(done) * d.weight
			iterationBudget -= cost
			homBudget -= uint64(done) * d.homCost
			e.totalIterations += cost
		}
		if err != nil {
			return StatusNotFinished, before, e.totalIterations, err
		}
		if e.progress[e.step] == total {
			e.completeStep(e.step)
		}
	}

	if e.step > stopAfter {
		return StatusFinished, before, e.totalIterations, nil
	}
	return StatusNotFinished, before, e.totalIterations, nil
}

// RunValidation drives the validation step by up to units elementary
// operations. See runStep for the shared semantics.
func (e *Engine) RunValidation(units int) (Status, error) {
	return e.runStep(StepValidation, units)
}

// RunRanking drives the ranking step by up to units pairwise comparisons.
func (e *Engine) RunRanking(units int) (Status, error) {
	return e.runStep(StepRanking, units)
}

// RunAllocation drives the allocation step by up to units ranked bids.
func (e *Engine) RunAllocation(units int) (Status, error) {
	return e.runStep(StepAllocation, units)
}

// RunReverseIndex drives the reverse-index step by up to units scan pairs.
func (e *Engine) RunReverseIndex(units int) (Status, error) {
	return e.runStep(StepReverseIndex, units)
}

// runStep drives a single step. A step that already finished reports
// StatusFinished without doing work; invoking a step whose predecessor has
// not completed is a precondition violation. The per-call homomorphic budget
// applies here exactly as in Advance.
func (e *Engine) runStep(s Step, units int) (Status, error) {
	if !e.reg.closed {
		return StatusNotFinished, ErrAuctionOpen
	}
	if e.step > s {
		return StatusFinished, nil
	}
	if e.step < s {
		return StatusNotFinished, fmt.Errorf("%w: %v before %v", ErrStepNotReady, s, e.step)
	}

	d := &stepTable[s]
	total := d.totalUnits(e)
	remaining := total - e.progress[s]
	if remaining < 0 {
		panic(fmt.Sprintf("core: step %v progress %d exceeds total %d", s, e.progress[s], total))
	}
	if remaining == 0 {
		e.completeStep(s)
		return StatusFinished, nil
	}

	if units > remaining {
		units = remaining
	}
	if fit := affordable(e.homBudget, d.homCost, remaining); fit < units {
		units = fit
	}
	if units <= 0 {
		return StatusInsufficientResources, nil
	}

	done, err := d.run(e, units)
	if done > 0 {
		e.totalIterations += uint64(done) * d.weight
	}
	if err != nil {
		return StatusNotFinished, err
	}
	if e.progress[s] == total {
		e.completeStep(s)
		return StatusFinished, nil
	}
	return StatusNotFinished, nil
}
