package syncsession

// Reduce derives the session status from its items.
//
// While any item is pending the session is pending, or processing once a
// worker claimed it. Otherwise it is completed when every item was scraped,
// failed when every item failed and partial in between. A session without
// items has nothing left to do and is completed.
func Reduce(claimed bool, items []ItemStatus) Status {
	p := Count(items)
	switch {
	case p.Pending > 0 && claimed:
		return StatusProcessing
	case p.Pending > 0:
		return StatusPending
	case p.Failed == 0:
		return StatusCompleted
	case p.Scraped == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Count tallies item statuses.
func Count(items []ItemStatus) Progress {
	p := Progress{Total: len(items)}
	for _, s := range items {
		switch s {
		case ItemScraped:
			p.Scraped++
		case ItemFailed:
			p.Failed++
		default:
			p.Pending++
		}
	}
	return p
}

func statuses(items []Item) []ItemStatus {
	out := make([]ItemStatus, len(items))
	for i, it := range items {
		out[i] = it.Status
	}
	return out
}

// itemStatuses counts items the session expects but the store hasn't
// returned as pending, so a session never completes over missing items.
func (v View) itemStatuses() []ItemStatus {
	out := statuses(v.Items)
	for i := len(out); i < v.ItemCount; i++ {
		out = append(out, ItemPending)
	}
	return out
}

// Progress tallies the items of v.
func (v View) Progress() Progress {
	return Count(v.itemStatuses())
}
