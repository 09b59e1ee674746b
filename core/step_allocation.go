package core

// allocationUnits is one unit per ranked bid.
func allocationUnits(e *Engine) int { return e.reg.count() }

// runAllocationUnits walks the ranked list once, carrying an encrypted
// cumulative quantity and the running clearing price. A rank is valid while
// its price is nonzero and supply has not yet been exhausted; its winnings
// are min(remaining supply, requested quantity). The cumulative total
// advances by the requested quantity whether or not the rank was valid, so
// once supply runs out every later rank wins zero. The clearing price tracks
// the price of the last valid rank seen, which after the full pass is the
// price of the marginal winning bid.
func (e *Engine) runAllocationUnits(maxUnits int) (int, error) {
	n := e.reg.count()
	done := 0
	for done < maxUnits && e.progress[StepAllocation] < n {
		k := e.progress[StepAllocation]
		if k == 0 {
			e.cumulative = e.ctx.Zero()
			e.clearing = e.ctx.Zero()
		}

		bid := e.ranked[k]
		zero := e.ctx.Zero()
		hasPrice := e.ctx.Gt(bid.Price, zero)
		underSupply := e.ctx.Gt(e.supply, e.cumulative)
		valid := e.ctx.And(hasPrice, underSupply)

		// Both arms are computed; Min caps the subtrahend so the invalid arm
		// cannot wrap before select discards it.
		sold := e.ctx.Min(e.cumulative, e.supply)
		remaining := e.ctx.Sub(e.supply, sold)
		won := e.ctx.Select(valid, e.ctx.Min(remaining, bid.Quantity), zero)

		e.wonByRank[k] = won
		e.cumulative = e.ctx.Add(e.cumulative, bid.Quantity)
		e.clearing = e.ctx.Select(valid, bid.Price, e.clearing)

		e.progress[StepAllocation]++
		done++
	}
	return done, nil
}
