package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	CharactersChanged bool            // true if any character was added, removed, or modified
	CharacterChanges  []CharacterDiff // per-character diffs
	LogLevelChanged   bool
	NewLogLevel       LogLevel
}

// CharacterDiff describes what changed for a single character between two
// configs.
type CharacterDiff struct {
	ID           string
	NameChanged  bool
	VoiceChanged bool
	Added        bool
	Removed      bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldChars := make(map[string]*CharacterConfig, len(old.Characters))
	for i := range old.Characters {
		oldChars[old.Characters[i].ID] = &old.Characters[i]
	}
	newChars := make(map[string]*CharacterConfig, len(new.Characters))
	for i := range new.Characters {
		newChars[new.Characters[i].ID] = &new.Characters[i]
	}

	// Detect modified and removed characters.
	for id, oldChar := range oldChars {
		newChar, exists := newChars[id]
		if !exists {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{
				ID:      id,
				Removed: true,
			})
			d.CharactersChanged = true
			continue
		}
		cd := CharacterDiff{
			ID:           id,
			NameChanged:  oldChar.Name != newChar.Name,
			VoiceChanged: oldChar.Voice != newChar.Voice,
		}
		if cd.NameChanged || cd.VoiceChanged {
			d.CharacterChanges = append(d.CharacterChanges, cd)
			d.CharactersChanged = true
		}
	}

	// Detect added characters.
	for id := range newChars {
		if _, exists := oldChars[id]; !exists {
			d.CharacterChanges = append(d.CharacterChanges, CharacterDiff{
				ID:    id,
				Added: true,
			})
			d.CharactersChanged = true
		}
	}

	return d
}
