// Package subtitle derives karaoke-style per-word highlight state from
// linear playback progress. The speech engine provides no per-word
// timestamps, so the mapping is an explicit linear approximation.
package subtitle

import (
	"math"
	"strings"
)

// WordState classifies one word relative to the highlight position.
type WordState int

const (
	// WordSpoken renders fully opaque: the word is behind the highlight.
	WordSpoken WordState = iota
	// WordCurrent is the emphasized word at the highlight position.
	WordCurrent
	// WordUpcoming renders de-emphasized: the word is ahead of the highlight.
	WordUpcoming
)

// HighlightIndex maps playback progress in [0,1] onto a word index:
// floor(progress * wordCount), clamped to [0, wordCount-1]. For any
// wordCount >= 1 the result is a valid index; for wordCount < 1 it is -1.
func HighlightIndex(progress float64, wordCount int) int {
	if wordCount < 1 {
		return -1
	}
	if progress < 0 {
		progress = 0
	}
	idx := int(math.Floor(progress * float64(wordCount)))
	if idx > wordCount-1 {
		idx = wordCount - 1
	}
	return idx
}

// Word is one rendered word with its highlight state.
type Word struct {
	Text  string    `json:"text"`
	State WordState `json:"state"`
}

// Project splits text into whitespace-separated words and assigns each its
// state for the given progress. It owns no state and is recomputed on every
// progress update.
func Project(text string, progress float64) []Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	current := HighlightIndex(progress, len(fields))
	words := make([]Word, len(fields))
	for i, f := range fields {
		state := WordUpcoming
		switch {
		case i < current:
			state = WordSpoken
		case i == current:
			state = WordCurrent
		}
		words[i] = Word{Text: f, State: state}
	}
	return words
}
