package hashdb

import (
	"strings"

	"github.com/xxxsen/romsync/internal/dat"
	"github.com/xxxsen/romsync/internal/hasher"
)

// ImportDAT merges the sets of a DAT into the partition of consoleID and
// returns the number of digests added or replaced. Filename-identity consoles
// are keyed by the digest of the set name; every other console by the rom md5.
func ImportDAT(dir string, consoleID int, kind hasher.ConsoleKind, df *dat.DataFile) (int, error) {
	existing, err := ReadPartition(dir, consoleID)
	if err != nil {
		return 0, err
	}
	merged := make(map[string]GameRecord, len(existing))
	for _, rec := range existing {
		merged[strings.ToLower(rec.MD5)] = rec
	}

	changed := 0
	put := func(digest, title string) {
		digest = strings.ToLower(strings.TrimSpace(digest))
		if digest == "" {
			return
		}
		rec := merged[digest]
		rec.MD5 = digest
		rec.Title = title
		rec.ConsoleID = consoleID
		merged[digest] = rec
		changed++
	}

	for _, set := range df.Sets() {
		if kind == hasher.KindArcadeFilename {
			id, err := hasher.Identify(kind, set.Name, nil)
			if err != nil {
				return 0, err
			}
			put(id.Digest, set.Title())
			continue
		}
		for _, rom := range set.Roms {
			put(rom.MD5, set.Title())
		}
	}

	records := make([]GameRecord, 0, len(merged))
	for _, rec := range merged {
		records = append(records, rec)
	}
	if err := WritePartition(dir, consoleID, records); err != nil {
		return 0, err
	}
	return changed, nil
}
