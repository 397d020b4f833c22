package engine

import (
	"context"
	"sort"

	"papershort/src/model"
)

// findReplaceable picks the eviction candidate when the position cap is hit:
// the open position with the worst basis metric, provided that metric is at
// or below the negative replacement threshold. Positions that were never
// marked count as 0% and are therefore never evicted. Returns (nil, 0, nil)
// when nothing qualifies.
func (e *Engine) findReplaceable(ctx context.Context) (*model.Position, float64, error) {
	open, err := e.repos.Positions.FindOpen(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(open) == 0 {
		return nil, 0, nil
	}

	// FindOpen orders by id ascending; the stable sort keeps that as the
	// tie-break, so equal metrics evict the oldest position.
	sort.SliceStable(open, func(i, j int) bool {
		return e.replaceMetric(&open[i]) < e.replaceMetric(&open[j])
	})

	worst := &open[0]
	metric := e.replaceMetric(worst)

	threshold := -e.cfg.ReplaceThresholdPct * 100
	if metric > threshold {
		return nil, 0, nil
	}

	return worst, metric, nil
}

// replaceMetric is the position's latest marked return on the configured
// basis. A never-marked position reads as 0.
func (e *Engine) replaceMetric(p *model.Position) float64 {
	if e.cfg.ReplaceBasis == ReplaceBasisLevered {
		if p.MarkLeveredPct != nil {
			return *p.MarkLeveredPct
		}
		return 0
	}
	if p.MarkUnleveredPct != nil {
		return *p.MarkUnleveredPct
	}
	return 0
}
