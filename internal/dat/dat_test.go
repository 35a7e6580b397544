package dat

import (
	"fmt"
	"hash/crc32"
	"strings"
	"testing"
)

const noIntroDat = `<?xml version="1.0"?>
<!DOCTYPE datafile PUBLIC "-//Logiqx//DTD ROM Management Datafile//EN" "http://www.logiqx.com/Dats/datafile.dtd">
<datafile>
	<header>
		<name>Nintendo - Super Nintendo Entertainment System</name>
		<description>Nintendo - Super Nintendo Entertainment System (20240101)</description>
		<version>20240101</version>
		<author>No-Intro</author>
	</header>
	<game name="Chrono Trigger (USA)">
		<description>Chrono Trigger (USA)</description>
		<rom name="Chrono Trigger (USA).sfc" size="4194304" crc="2d206bf7" md5="a2bc447961e52fd2227baed164f729dc"/>
	</game>
</datafile>`

const mameDat = `<?xml version="1.0" encoding="UTF-8"?>
<datafile>
  <header><name>MAME</name><version>0.282</version></header>
  <machine name="sf2" romof="base">
    <description>Street Fighter II: The World Warrior</description>
    <year>1991</year>
    <manufacturer>Capcom</manufacturer>
    <rom name="sf2_01.bin" size="3" crc="352441c2"/>
  </machine>
</datafile>`

func TestParseNoIntro(t *testing.T) {
	df, err := NewParser().Parse(strings.NewReader(noIntroDat))
	if err != nil {
		t.Fatalf("expected parser to succeed, got error: %v", err)
	}
	if df.Header.Author != "No-Intro" {
		t.Fatalf("unexpected header: %+v", df.Header)
	}
	game := df.FindGame("Chrono Trigger (USA)")
	if game == nil {
		t.Fatalf("expected to find chrono trigger")
	}
	if len(game.Roms) != 1 || game.Roms[0].MD5 != "a2bc447961e52fd2227baed164f729dc" || game.Roms[0].Size != 4194304 {
		t.Fatalf("unexpected rom entry: %+v", game.Roms)
	}
}

func TestParseMameMachines(t *testing.T) {
	df, err := NewParser().Parse(strings.NewReader(mameDat))
	if err != nil {
		t.Fatalf("expected parser to succeed, got error: %v", err)
	}
	sets := df.Sets()
	if len(sets) != 1 || sets[0].Name != "sf2" || sets[0].RomOf != "base" {
		t.Fatalf("unexpected sets: %+v", sets)
	}
	if sets[0].Title() != "Street Fighter II: The World Warrior" {
		t.Fatalf("unexpected title: %s", sets[0].Title())
	}
	if df.FindGame("sf2") == nil {
		t.Fatalf("expected machine lookup to work")
	}
	if df.FindGame("missing") != nil {
		t.Fatalf("expected nil for unknown set")
	}
}

func TestCheckArchive(t *testing.T) {
	good := []byte("abc")
	game := &Game{Roms: []Rom{
		{Name: "a.bin", Size: 3, CRC: fmt.Sprintf("%08x", crc32.ChecksumIEEE(good))},
		{Name: "missing.bin", Size: 1},
		{Name: "bad.bin", Size: 10, CRC: "ffffffff"},
	}}
	entries := []ArchiveEntry{
		{Name: "a.bin", Size: 3, CRC32: crc32.ChecksumIEEE(good)},
		{Name: "bad.bin", Size: 3, CRC32: 1},
	}
	issues := CheckArchive(game, entries)
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %v", issues)
	}

	if issues := CheckArchive(game, entries[:1]); len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}
	if issues := CheckArchive(nil, nil); len(issues) != 1 {
		t.Fatalf("expected nil game issue, got %v", issues)
	}
}
