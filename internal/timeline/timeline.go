// Package timeline merges correlated messages from all platforms into one
// chronologically ordered sequence. Rebuilding from the same message
// multiset yields byte-identical ordering.
package timeline

import (
	"sort"

	"commsight/internal/message"
)

// Build orders resolved messages by normalized UTC timestamp ascending.
// Messages lacking a parseable timestamp form a separate undated partition,
// preserved in per-platform ingestion order and appended after the dated
// sequence; nothing is ever discarded. Equal timestamps break by platform
// priority, then ingestion sequence number, never by content.
func Build(messages []message.ResolvedMessage, platformPriority []string) []message.ResolvedMessage {
	prio := make(map[string]int, len(platformPriority))
	for i, p := range platformPriority {
		prio[p] = i
	}
	rank := func(platform string) (int, string) {
		if r, ok := prio[platform]; ok {
			return r, ""
		}
		// Unlisted platforms sort after listed ones, by name.
		return len(platformPriority), platform
	}

	ordered := make([]message.ResolvedMessage, len(messages))
	copy(ordered, messages)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := &ordered[i], &ordered[j]

		// Undated partition is a contiguous suffix.
		if a.Undated != b.Undated {
			return !a.Undated
		}

		if !a.Undated {
			if !a.UTC.Equal(*b.UTC) {
				return a.UTC.Before(*b.UTC)
			}
		}

		ar, an := rank(a.Platform)
		br, bn := rank(b.Platform)
		if ar != br {
			return ar < br
		}
		if an != bn {
			return an < bn
		}
		return a.Seq < b.Seq
	})

	return ordered
}
