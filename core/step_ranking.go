package core

// rankingUnits is the number of pairwise comparisons incremental insertion
// needs: n(n-1)/2. Sorting fewer than three bids is accounted as a single
// virtual unit.
func rankingUnits(e *Engine) int {
	n := e.reg.count()
	if n == 0 {
		return 0
	}
	if n < 3 {
		return 1
	}
	return n * (n - 1) / 2
}

// runRankingUnits extends the ranked prefix by incremental insertion, one
// pairwise comparison per unit. The in-flight state (ranked prefix length,
// cursor bid, walk offset) survives across calls, so a resumed call
// continues exactly where the previous one stopped and no comparison is ever
// repeated.
//
// One insertion walks the prefix from the top: at each slot the entry and the
// cursor are compared and merged branchlessly, the winner staying in the
// slot and the loser carried on as the new cursor. When the walk reaches the
// prefix end the cursor is appended; the prefix is then one longer and still
// in final relative order.
func (e *Engine) runRankingUnits(maxUnits int) (int, error) {
	n := e.reg.count()
	total := rankingUnits(e)

	if n < 3 {
		// Whole sort is one virtual unit.
		if maxUnits < 1 || e.progress[StepRanking] >= total {
			return 0, nil
		}
		if n >= 1 {
			e.ranked[0] = e.reg.bids[0]
			e.rankedLen = 1
		}
		if n == 2 {
			cursor := e.reg.bids[1]
			firstWins, err := e.outranks(&e.ranked[0], &cursor)
			if err != nil {
				return 0, err
			}
			winner := selectBid(e.ctx, firstWins, e.ranked[0], cursor)
			loser := selectBid(e.ctx, firstWins, cursor, e.ranked[0])
			e.ranked[0], e.ranked[1] = winner, loser
			e.rankedLen = 2
		}
		e.progress[StepRanking] = 1
		return 1, nil
	}

	done := 0
	for done < maxUnits && e.progress[StepRanking] < total {
		if e.rankedLen == 0 {
			// Seeding the prefix with the first bid costs no comparison.
			e.ranked[0] = e.reg.bids[0]
			e.rankedLen = 1
		}
		if !e.cursorSet {
			e.cursor = e.reg.bids[e.rankedLen]
			e.walkPos = 0
			e.cursorSet = true
		}

		j := e.walkPos
		entryWins, err := e.outranks(&e.ranked[j], &e.cursor)
		if err != nil {
			return done, err
		}
		winner := selectBid(e.ctx, entryWins, e.ranked[j], e.cursor)
		loser := selectBid(e.ctx, entryWins, e.cursor, e.ranked[j])
		e.ranked[j] = winner
		e.cursor = loser

		e.walkPos++
		e.progress[StepRanking]++
		done++

		if e.walkPos == e.rankedLen {
			e.ranked[e.rankedLen] = e.cursor
			e.rankedLen++
			e.cursorSet = false
			e.walkPos = 0
		}
	}
	return done, nil
}
