package client

import (
	"context"
	"iter"
	"time"

	"github.com/ratsinfo/oparl-pipeline/internal/model"
)

// IteratePapers returns a lazy sequence of Paper records bounded by the
// inclusive RFC-3339 window [windowStart, windowEnd] and by pageLimit pages
// (0 means unlimited). Callers range over the sequence with a standard
// `for paper, err := range seq` loop; they must not assume it fits in
// memory — the number of Papers can exceed it (spec.md §4.A).
//
// On terminal failure mid-iteration the sequence yields a non-nil error
// wrapping FetchError and stops; callers may resume on the next run because
// the State Store already reflects which identifiers were seen.
func (c *Client) IteratePapers(ctx context.Context, city string, windowStart, windowEnd time.Time, pageLimit int) iter.Seq2[model.Paper, error] {
	return func(yield func(model.Paper, error) bool) {
		listURL, err := c.resolveListEndpoint(ctx)
		if err != nil {
			yield(model.Paper{}, err)
			return
		}

		nextURL, err := buildQuery(listURL, windowStart, windowEnd)
		if err != nil {
			yield(model.Paper{}, err)
			return
		}

		pages := 0
		for nextURL != "" {
			if pageLimit > 0 && pages >= pageLimit {
				return
			}
			select {
			case <-ctx.Done():
				yield(model.Paper{}, ctx.Err())
				return
			default:
			}

			var page listEnvelope
			if err := c.doGet(ctx, nextURL, &page); err != nil {
				yield(model.Paper{}, err)
				return
			}
			pages++

			for _, p := range page.Data {
				// Edge case (spec.md §4.A): a Paper outside the window is
				// yielded anyway; filtering is the orchestrator's job.
				if !yield(p.toModel(city), nil) {
					return
				}
			}

			nextURL = page.Links.Next
		}
	}
}
