package domain

import "time"

// InteractionKind is a toggle-style interaction on a post
type InteractionKind string

const (
	InteractionFavourite InteractionKind = "favourite"
	InteractionBoost     InteractionKind = "boost"
	InteractionBookmark  InteractionKind = "bookmark"
)

// IsValid reports whether k is a known interaction kind
func (k InteractionKind) IsValid() bool {
	switch k {
	case InteractionFavourite, InteractionBoost, InteractionBookmark:
		return true
	}
	return false
}

// Counted reports whether the interaction carries a public count
func (k InteractionKind) Counted() bool {
	return k != InteractionBookmark
}

// OptimisticCount is the count shown before the server answers.
// It never goes below zero.
func OptimisticCount(currentCount int, wasActive bool) int {
	if wasActive {
		return max(0, currentCount-1)
	}
	return max(0, currentCount+1)
}

// ReconciledCount merges a server response into the displayed count.
//
// When the server flag is not the expected flipped state something else changed
// the post, so the server count wins. Otherwise a server count that has not yet
// moved past the original (stale instance) keeps the optimistic value.
// No anti-flapping guard exists for rapid repeated toggles on one post.
func ReconciledCount(originalCount int, wasActive bool, serverCount int, serverIsActive bool) int {
	expected := !wasActive
	if serverIsActive != expected {
		return max(0, serverCount)
	}

	normalized := max(0, serverCount)
	if wasActive && normalized >= originalCount {
		return OptimisticCount(originalCount, wasActive)
	}
	if !wasActive && normalized <= originalCount {
		return OptimisticCount(originalCount, wasActive)
	}
	return normalized
}

// InteractionState is the displayed state of one interaction on one post.
// Active and Count are always updated together.
type InteractionState struct {
	PostID string          `json:"post_id"`
	Kind   InteractionKind `json:"kind"`
	Active bool            `json:"active"`
	Count  int             `json:"count"`
}

// Optimistic returns the speculative generation of the state
func (s InteractionState) Optimistic() InteractionState {
	next := InteractionState{PostID: s.PostID, Kind: s.Kind, Active: !s.Active}
	if s.Kind.Counted() {
		next.Count = OptimisticCount(s.Count, s.Active)
	}
	return next
}

// Reconcile returns the authoritative generation given the server response.
// s is the state from before the toggle.
func (s InteractionState) Reconcile(serverIsActive bool, serverCount int) InteractionState {
	next := InteractionState{PostID: s.PostID, Kind: s.Kind, Active: serverIsActive}
	if s.Kind.Counted() {
		next.Count = ReconciledCount(s.Count, s.Active, serverCount, serverIsActive)
	}
	return next
}

// Apply adopts a broadcast snapshot. Snapshots for other posts are ignored.
func (s InteractionState) Apply(snap *PostSnapshot) (InteractionState, bool) {
	if snap == nil || snap.PostID != s.PostID {
		return s, false
	}
	active, count := snap.State(s.Kind)
	s.Active = active
	s.Count = max(0, count)
	return s, true
}

// PostSnapshot is the canonical interaction state of a post
type PostSnapshot struct {
	PostID          string    `json:"post_id"`
	Favourited      bool      `json:"favourited"`
	FavouritesCount int       `json:"favourites_count"`
	Reblogged       bool      `json:"reblogged"`
	ReblogsCount    int       `json:"reblogs_count"`
	Bookmarked      bool      `json:"bookmarked"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// State returns the flag and count for one interaction kind.
// Bookmarks carry no public count.
func (p *PostSnapshot) State(kind InteractionKind) (bool, int) {
	switch kind {
	case InteractionFavourite:
		return p.Favourited, p.FavouritesCount
	case InteractionBoost:
		return p.Reblogged, p.ReblogsCount
	case InteractionBookmark:
		return p.Bookmarked, 0
	}
	return false, 0
}

// WithState returns a copy of the snapshot with one interaction replaced
func (p PostSnapshot) WithState(st InteractionState) PostSnapshot {
	switch st.Kind {
	case InteractionFavourite:
		p.Favourited, p.FavouritesCount = st.Active, st.Count
	case InteractionBoost:
		p.Reblogged, p.ReblogsCount = st.Active, st.Count
	case InteractionBookmark:
		p.Bookmarked = st.Active
	}
	return p
}
