package arbiter_test

import (
	"errors"
	"testing"

	"github.com/tavernworks/parley/internal/character/arbiter"
)

func sceneCharacters() map[string]string {
	return map[string]string{
		"npc-grimjaw": "Grimjaw the Blacksmith",
		"npc-elara":   "Elara",
		"npc-guard":   "Gate Guard",
	}
}

func TestDetect_ExplicitNameMatch(t *testing.T) {
	t.Parallel()

	d := arbiter.NewAddressDetector(sceneCharacters())

	id, err := d.Detect("Hey Elara, what do you have for sale?", "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if id != "npc-elara" {
		t.Errorf("detected %q; want npc-elara", id)
	}
}

func TestDetect_PrefersLongestFragment(t *testing.T) {
	t.Parallel()

	// Two characters whose names share the word "guard": the full-name key is
	// longer and must win when the full name appears in the text.
	d := arbiter.NewAddressDetector(map[string]string{
		"npc-gate":  "Gate Guard",
		"npc-royal": "Royal Guard Captain",
	})

	id, err := d.Detect("royal guard captain, open the gate", "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if id != "npc-royal" {
		t.Errorf("detected %q; want npc-royal", id)
	}
}

func TestDetect_WordFragmentMatch(t *testing.T) {
	t.Parallel()

	d := arbiter.NewAddressDetector(sceneCharacters())

	// Only the single word "blacksmith" appears, not the full name.
	id, err := d.Detect("blacksmith, can you repair this sword?", "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if id != "npc-grimjaw" {
		t.Errorf("detected %q; want npc-grimjaw", id)
	}
}

func TestDetect_PhoneticFallback(t *testing.T) {
	t.Parallel()

	d := arbiter.NewAddressDetector(sceneCharacters())

	// "Ilara" is a plausible transcription of "Elara": same consonant
	// skeleton, high string similarity.
	id, err := d.Detect("Ilara, are you there?", "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if id != "npc-elara" {
		t.Errorf("detected %q; want npc-elara", id)
	}
}

func TestDetect_LastSpeakerContinuation(t *testing.T) {
	t.Parallel()

	d := arbiter.NewAddressDetector(sceneCharacters())

	id, err := d.Detect("and how much would that cost?", "npc-elara")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if id != "npc-elara" {
		t.Errorf("detected %q; want npc-elara (continuation)", id)
	}
}

func TestDetect_SingleCharacterFallback(t *testing.T) {
	t.Parallel()

	d := arbiter.NewAddressDetector(map[string]string{"npc-elara": "Elara"})

	id, err := d.Detect("hello there", "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if id != "npc-elara" {
		t.Errorf("detected %q; want npc-elara (only character)", id)
	}
}

func TestDetect_NoTarget(t *testing.T) {
	t.Parallel()

	d := arbiter.NewAddressDetector(sceneCharacters())

	_, err := d.Detect("what a lovely day", "")
	if !errors.Is(err, arbiter.ErrNoTarget) {
		t.Fatalf("error = %v; want ErrNoTarget", err)
	}
}

func TestRebuild_ReplacesIndex(t *testing.T) {
	t.Parallel()

	d := arbiter.NewAddressDetector(sceneCharacters())
	d.Rebuild(map[string]string{"npc-mayor": "Mayor Holloway"})

	if id, err := d.Detect("Elara, hello?", ""); err == nil && id == "npc-elara" {
		t.Error("old character still detected after Rebuild")
	}

	id, err := d.Detect("Mayor, a word please", "")
	if err != nil {
		t.Fatalf("Detect after Rebuild: %v", err)
	}
	if id != "npc-mayor" {
		t.Errorf("detected %q; want npc-mayor", id)
	}
}
