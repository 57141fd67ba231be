// Package cardstream turns the cumulative text of a streamed model response into
// flashcard drafts while the response is still being written.
//
// The buffer handed to Update is always the whole response so far. Each call
// re-derives its result from that buffer; the only state an Extractor keeps is the
// last good snapshot, returned again when a buffer yields nothing usable.
package cardstream

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

var (
	frontValuePattern = regexp.MustCompile(`["']front["']\s*:\s*"((?:[^"\\]|\\.)*)`)
	backValuePattern  = regexp.MustCompile(`["']back["']\s*:\s*"((?:[^"\\]|\\.)*)`)
)

// Extractor tracks one streamed response. It is not safe for concurrent use;
// independent streams use independent extractors.
type Extractor struct {
	last Snapshot
}

func NewExtractor() *Extractor {
	return &Extractor{
		last: Snapshot{
			Completed: []FlashcardDraft{},
			Current:   CurrentCard{Status: StatusFront},
		},
	}
}

// Snapshot returns the last state produced by Update.
func (e *Extractor) Snapshot() Snapshot {
	return e.last.clone()
}

// Update derives the completed cards and the in-flight card from buffer.
// It never fails: unusable input returns the previous snapshot.
func (e *Extractor) Update(buffer string) Snapshot {
	res, err := parseStructured(buffer)
	if err != nil {
		res, err = parseTruncated(buffer)
	}

	if err == nil {
		n := len(res.cards)
		if n == 0 {
			e.last.Completed = []FlashcardDraft{}
			return e.last.clone()
		}

		completed := make([]FlashcardDraft, n-1)
		copy(completed, res.cards[:n-1])

		current := res.cards[n-1]
		status := classify(current)
		if res.lastOpen && status == StatusComplete {
			status = StatusBack
		}

		e.last = Snapshot{
			Completed: completed,
			Current:   CurrentCard{FlashcardDraft: current, Status: status},
		}
		return e.last.clone()
	}

	if current, ok := scrapeCurrent(buffer); ok {
		e.last.Current = current
	}
	return e.last.clone()
}

// Finalize parses the finished response. Unlike Update it reports failure, since
// no more data will arrive.
func Finalize(buffer string) ([]FlashcardDraft, error) {
	res, err := parseStructured(buffer)
	if err != nil {
		return nil, &MalformedResponseError{Raw: buffer, Err: err}
	}
	if len(res.cards) == 0 {
		return nil, &MalformedResponseError{Raw: buffer, Err: ErrNoFlashcards}
	}
	return res.cards, nil
}

// Stream accumulates chunks into the response buffer, reporting a snapshot after
// every chunk, and finalizes once chunks is closed.
func Stream(ctx context.Context, chunks <-chan string, onSnapshot func(Snapshot)) ([]FlashcardDraft, error) {
	ex := NewExtractor()
	var buf strings.Builder

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return Finalize(buf.String())
			}
			if chunk == "" {
				continue
			}
			buf.WriteString(chunk)
			snap := ex.Update(buf.String())
			if onSnapshot != nil {
				onSnapshot(snap)
			}
		}
	}
}

// scrapeCurrent pulls the latest front/back values out of text that is not yet
// parseable. A back value older than the latest front belongs to a previous card.
func scrapeCurrent(buffer string) (CurrentCard, bool) {
	fronts := frontValuePattern.FindAllStringSubmatchIndex(buffer, -1)
	backs := backValuePattern.FindAllStringSubmatchIndex(buffer, -1)
	if len(fronts) == 0 && len(backs) == 0 {
		return CurrentCard{}, false
	}

	var card CurrentCard
	frontPos := -1
	if len(fronts) > 0 {
		m := fronts[len(fronts)-1]
		frontPos = m[0]
		card.Front = unquoteFragment(buffer[m[2]:m[3]])
	}

	hasBack := false
	if len(backs) > 0 {
		m := backs[len(backs)-1]
		if m[0] > frontPos {
			card.Back = unquoteFragment(buffer[m[2]:m[3]])
			hasBack = true
		}
	}

	if !hasBack && card.Front == "" {
		return CurrentCard{}, false
	}
	if hasBack {
		card.Status = StatusBack
	} else {
		card.Status = StatusFront
	}
	return card, true
}

func unquoteFragment(raw string) string {
	if n := len(raw) - len(strings.TrimRight(raw, `\`)); n%2 == 1 {
		raw = raw[:len(raw)-1]
	}
	var s string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &s); err == nil {
		return s
	}
	return raw
}

func (s Snapshot) clone() Snapshot {
	completed := make([]FlashcardDraft, len(s.Completed))
	copy(completed, s.Completed)
	return Snapshot{Completed: completed, Current: s.Current}
}
