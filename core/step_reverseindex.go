package core

// reverseIndexUnits is one unit per (position, rank) pair.
func reverseIndexUnits(e *Engine) int {
	n := e.reg.count()
	return n * n
}

// runReverseIndexUnits maps winnings from rank order back to registry
// positions so prizes can be claimed by identity instead of by rank. For
// each original position the ranked ids are equality-scanned and the
// matching rank's won quantity is copied in via select. Exactly one rank
// matches because ids are unique.
func (e *Engine) runReverseIndexUnits(maxUnits int) (int, error) {
	n := e.reg.count()
	total := n * n
	done := 0
	for done < maxUnits && e.progress[StepReverseIndex] < total {
		u := e.progress[StepReverseIndex]
		i := u / n // 0-based position index
		k := u % n // rank being scanned for this position
		if k == 0 {
			e.wonByPos[i] = e.ctx.Zero()
		}

		match := e.ctx.Eq(e.ranked[k].ID, e.reg.bids[i].ID)
		e.wonByPos[i] = e.ctx.Select(match, e.wonByRank[k], e.wonByPos[i])

		e.progress[StepReverseIndex]++
		done++
	}
	return done, nil
}
