// Package detector observes the target wallet for token swaps and turns
// them into normalized trade intents. Two modes exist: push (log
// subscription) and poll (balance diffing), emitting the same intent shape.
package detector

import (
	"sort"

	"solana-copy-trader/internal/solana"
)

// TokenDelta is one mint's balance change for a wallet across a transaction.
type TokenDelta struct {
	Mint     string
	Delta    float64 // human units, negative = spent
	Decimals int
}

// ComputeDeltas diffs the pre/post token balance snapshots for one owner.
// Zero deltas are filtered out. Balances spread over multiple token
// accounts for the same mint are summed.
func ComputeDeltas(meta *solana.TransactionMeta, owner string) []TokenDelta {
	if meta == nil {
		return nil
	}

	pre := make(map[string]float64)
	decimals := make(map[string]int)
	for _, b := range meta.PreTokenBalances {
		if b.Owner != owner {
			continue
		}
		pre[b.Mint] += b.Amount
		decimals[b.Mint] = b.Decimals
	}

	post := make(map[string]float64)
	for _, b := range meta.PostTokenBalances {
		if b.Owner != owner {
			continue
		}
		post[b.Mint] += b.Amount
		decimals[b.Mint] = b.Decimals
	}

	mints := make(map[string]struct{}, len(pre)+len(post))
	for m := range pre {
		mints[m] = struct{}{}
	}
	for m := range post {
		mints[m] = struct{}{}
	}

	deltas := make([]TokenDelta, 0, len(mints))
	for m := range mints {
		d := post[m] - pre[m]
		if d == 0 {
			continue
		}
		deltas = append(deltas, TokenDelta{Mint: m, Delta: d, Decimals: decimals[m]})
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Mint < deltas[j].Mint })
	return deltas
}

// ClassifySwap identifies a swap in a delta set: at least one mint decreased
// and at least one increased. Multi-hop transactions are resolved to the
// largest-magnitude decrease/increase pair.
func ClassifySwap(deltas []TokenDelta) (in, out TokenDelta, ok bool) {
	for _, d := range deltas {
		if d.Delta < 0 && -d.Delta > -in.Delta {
			in = d
		}
		if d.Delta > 0 && d.Delta > out.Delta {
			out = d
		}
	}
	if in.Mint == "" || out.Mint == "" {
		return TokenDelta{}, TokenDelta{}, false
	}
	return in, out, true
}
