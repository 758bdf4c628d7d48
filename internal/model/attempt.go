package model

import "time"

// AttemptKind discriminates the attempt variants in a record's log.
type AttemptKind string

const (
	AttemptGuess AttemptKind = "guess"
	AttemptSkip  AttemptKind = "skip"
)

// MediaKind identifies the catalog a guessed title came from.
type MediaKind string

const (
	MediaMovie MediaKind = "movie"
	MediaShow  MediaKind = "show"
	MediaGame  MediaKind = "game"
)

// Attempt is one entry in a record's chronological attempt log. A guess
// carries the guessed title and its catalog identity; a skip carries only
// its timestamp.
type Attempt struct {
	Kind       AttemptKind `json:"kind"`
	Correct    bool        `json:"correct,omitempty"`
	Title      string      `json:"title,omitempty"`
	ExternalID string      `json:"external_id,omitempty"`
	Media      MediaKind   `json:"media_kind,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewGuess builds a guess attempt stamped with the given time.
func NewGuess(title, externalID string, media MediaKind, correct bool, at time.Time) Attempt {
	return Attempt{
		Kind:       AttemptGuess,
		Correct:    correct,
		Title:      title,
		ExternalID: externalID,
		Media:      media,
		Timestamp:  at,
	}
}

// NewSkip builds a skip attempt stamped with the given time.
func NewSkip(at time.Time) Attempt {
	return Attempt{Kind: AttemptSkip, Timestamp: at}
}

// LegacyGuess is the pre-v2 flat guess shape. It survives only so that old
// clients reading the same row keep working; the attempt log is the source
// of truth and the legacy list is regenerated from it on every
// normalization pass.
type LegacyGuess struct {
	Title   string `json:"title"`
	Correct bool   `json:"correct"`
}
