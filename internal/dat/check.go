package dat

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ArchiveEntry is the subset of an archive entry needed to check a set.
type ArchiveEntry struct {
	Name  string
	Size  int64
	CRC32 uint32
}

// CheckArchive compares archive contents against the rom definitions of a set
// and returns one message per problem found.
func CheckArchive(game *Game, entries []ArchiveEntry) []string {
	if game == nil {
		return []string{"nil game reference"}
	}
	fullIndex := make(map[string]ArchiveEntry, len(entries))
	baseIndex := make(map[string][]ArchiveEntry, len(entries))
	for _, e := range entries {
		fullIndex[strings.ToLower(e.Name)] = e
		base := strings.ToLower(filepath.Base(e.Name))
		baseIndex[base] = append(baseIndex[base], e)
	}

	var issues []string
	for _, rom := range game.Roms {
		key := strings.ToLower(rom.Name)
		if e, ok := fullIndex[key]; ok {
			issues = append(issues, checkRom(rom, e)...)
			continue
		}
		candidates := baseIndex[key]
		if len(candidates) == 0 {
			issues = append(issues, fmt.Sprintf("missing rom: %s", rom.Name))
			continue
		}
		matched := false
		for _, e := range candidates {
			if len(checkRom(rom, e)) == 0 {
				matched = true
				break
			}
		}
		if !matched {
			issues = append(issues, fmt.Sprintf("no candidate matched rom %s (candidates: %d)", rom.Name, len(candidates)))
		}
	}
	return issues
}

func checkRom(rom Rom, e ArchiveEntry) []string {
	var issues []string
	if rom.Size > 0 && e.Size != rom.Size {
		issues = append(issues, fmt.Sprintf("size mismatch for %s: expected %d, got %d", rom.Name, rom.Size, e.Size))
	}
	if rom.CRC != "" {
		crc := fmt.Sprintf("%08x", e.CRC32)
		if !strings.EqualFold(crc, rom.CRC) {
			issues = append(issues, fmt.Sprintf("crc mismatch for %s: expected %s, got %s", rom.Name, rom.CRC, crc))
		}
	}
	return issues
}
