package arbiter

import (
	"errors"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// ErrNoTarget is returned when address detection cannot determine which
// character the player spoke to.
var ErrNoTarget = errors.New("arbiter: no target character identified")

const defaultPhoneticThreshold = 0.70

// candidate is a pre-sorted name-to-ID mapping entry.
type candidate struct {
	key string
	id  string
}

// AddressDetector determines which character was spoken to by scanning the
// player's transcript for character names, with a phonetic fallback for
// misheard names and a priority chain of heuristics behind it.
type AddressDetector struct {
	// sorted holds lowercase names and name fragments mapped to character
	// ids, sorted by descending key length so more specific (longer) names
	// match before shorter fragments. Built once and reused on every call.
	sorted []candidate

	phoneticThreshold float64
}

// DetectorOption is a functional option for configuring an AddressDetector.
type DetectorOption func(*AddressDetector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matched name fragment to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) DetectorOption {
	return func(d *AddressDetector) { d.phoneticThreshold = threshold }
}

// NewAddressDetector builds a name index from the given characters, keyed by
// character id with the display name as value.
//
// The index includes the full lowercase name of each character and every
// individual word of length >= 3 from that name. For example, "Grimjaw the
// Blacksmith" produces entries for "grimjaw the blacksmith", "grimjaw", and
// "blacksmith" (the word "the" is too short).
func NewAddressDetector(characters map[string]string, opts ...DetectorOption) *AddressDetector {
	d := &AddressDetector{phoneticThreshold: defaultPhoneticThreshold}
	for _, o := range opts {
		o(d)
	}
	d.buildIndex(characters)
	return d
}

// Detect returns the id of the character addressed in the transcript.
//
// The detection strategy is applied in order:
//  1. Explicit name match — scan text for indexed names/fragments.
//  2. Phonetic match — Double Metaphone overlap ranked by Jaro-Winkler, for
//     names the transcription mangled.
//  3. Last-speaker continuation — route to lastSpeaker if still indexed.
//  4. Single-character fallback — if exactly one character exists.
//  5. No match — return ("", [ErrNoTarget]).
func (d *AddressDetector) Detect(text, lastSpeaker string) (string, error) {
	if id := d.matchName(text); id != "" {
		return id, nil
	}
	if id := d.matchPhonetic(text); id != "" {
		return id, nil
	}

	if lastSpeaker != "" && d.knows(lastSpeaker) {
		return lastSpeaker, nil
	}

	if id, ok := d.singleCharacter(); ok {
		return id, nil
	}

	return "", ErrNoTarget
}

// Rebuild rebuilds the name index from a fresh set of characters. Call this
// after characters join or leave the scene.
func (d *AddressDetector) Rebuild(characters map[string]string) {
	d.buildIndex(characters)
}

func (d *AddressDetector) buildIndex(characters map[string]string) {
	index := make(map[string]string)
	for id, name := range characters {
		lower := strings.ToLower(name)
		index[lower] = id
		for word := range strings.FieldsSeq(lower) {
			if len(word) >= 3 {
				index[word] = id
			}
		}
	}

	d.sorted = make([]candidate, 0, len(index))
	for key, id := range index {
		d.sorted = append(d.sorted, candidate{key: key, id: id})
	}
	slices.SortFunc(d.sorted, func(a, b candidate) int {
		return len(b.key) - len(a.key) // descending
	})
}

// matchName scans the lowercase transcript for indexed names, longest key
// first, so "grimjaw the blacksmith" wins over "grimjaw" when both appear.
func (d *AddressDetector) matchName(text string) string {
	lower := strings.ToLower(text)
	for _, c := range d.sorted {
		if strings.Contains(lower, c.key) {
			return c.id
		}
	}
	return ""
}

// matchPhonetic compares each transcript word against the indexed fragments
// by Double Metaphone code overlap, ranking candidates by Jaro-Winkler on the
// raw strings. Catches transcriptions like "grim jaw" or "grimshaw".
func (d *AddressDetector) matchPhonetic(text string) string {
	var (
		bestID    string
		bestScore float64
	)
	for word := range strings.FieldsSeq(strings.ToLower(text)) {
		if len(word) < 3 {
			continue
		}
		wp, ws := matchr.DoubleMetaphone(word)
		for _, c := range d.sorted {
			cp, cs := matchr.DoubleMetaphone(c.key)
			if !codesOverlap(wp, ws, cp, cs) {
				continue
			}
			if score := matchr.JaroWinkler(word, c.key, false); score >= d.phoneticThreshold && score > bestScore {
				bestID = c.id
				bestScore = score
			}
		}
	}
	return bestID
}

func codesOverlap(aPrimary, aSecondary, bPrimary, bSecondary string) bool {
	for _, a := range []string{aPrimary, aSecondary} {
		if a == "" {
			continue
		}
		if a == bPrimary || a == bSecondary {
			return true
		}
	}
	return false
}

func (d *AddressDetector) knows(id string) bool {
	for _, c := range d.sorted {
		if c.id == id {
			return true
		}
	}
	return false
}

// singleCharacter reports the only indexed character id, if exactly one
// character was indexed.
func (d *AddressDetector) singleCharacter() (string, bool) {
	var id string
	for _, c := range d.sorted {
		if id == "" {
			id = c.id
		} else if c.id != id {
			return "", false
		}
	}
	return id, id != ""
}
