package device

import "github.com/xxxsen/romsync/internal/system"

type folderSet map[system.Code]string

func buildSystems(folders folderSet, extra ...string) map[system.Code]Mapping {
	out := make(map[system.Code]Mapping, len(folders))
	for code, folder := range folders {
		sys, ok := system.Lookup(code)
		if !ok {
			continue
		}
		formats := append([]string{}, sys.Extensions...)
		for _, ext := range extra {
			if !contains(formats, ext) {
				formats = append(formats, ext)
			}
		}
		out[code] = Mapping{Folder: folder, Formats: formats}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

var onionFolders = folderSet{
	system.NES:       "FC",
	system.FDS:       "FDS",
	system.SNES:      "SFC",
	system.N64:       "N64",
	system.GB:        "GB",
	system.GBC:       "GBC",
	system.GBA:       "GBA",
	system.NDS:       "NDS",
	system.VB:        "VB",
	system.Genesis:   "MD",
	system.SMS:       "MS",
	system.GG:        "GG",
	system.Sega32X:   "THIRTYTWOX",
	system.SG1000:    "SEGASGONE",
	system.PCE:       "PCE",
	system.Lynx:      "LYNX",
	system.Atari2600: "ATARI",
	system.Atari7800: "SEVENTYEIGHTHUNDRED",
	system.NGP:       "NGP",
	system.NGPC:      "NGP",
	system.WS:        "WS",
	system.WSC:       "WS",
	system.Arcade:    "ARCADE",
}

var minuiFolders = folderSet{
	system.NES:     "Nintendo Entertainment System (FC)",
	system.FDS:     "Famicom Disk System (FDS)",
	system.SNES:    "Super Nintendo Entertainment System (SFC)",
	system.GB:      "Game Boy (GB)",
	system.GBC:     "Game Boy Color (GBC)",
	system.GBA:     "Game Boy Advance (GBA)",
	system.VB:      "Virtual Boy (VB)",
	system.Genesis: "Sega Genesis (MD)",
	system.SMS:     "Sega Master System (SMS)",
	system.GG:      "Sega Game Gear (GG)",
	system.PCE:     "TurboGrafx-16 (PCE)",
	system.Lynx:    "Atari Lynx (LYNX)",
	system.NGPC:    "Neo Geo Pocket Color (NGPC)",
	system.Arcade:  "Arcade (FBN)",
}

var batoceraFolders = folderSet{
	system.NES:       "nes",
	system.FDS:       "fds",
	system.SNES:      "snes",
	system.N64:       "n64",
	system.GB:        "gb",
	system.GBC:       "gbc",
	system.GBA:       "gba",
	system.NDS:       "nds",
	system.VB:        "virtualboy",
	system.Genesis:   "megadrive",
	system.SMS:       "mastersystem",
	system.GG:        "gamegear",
	system.Sega32X:   "sega32x",
	system.SG1000:    "sg1000",
	system.PCE:       "pcengine",
	system.Lynx:      "lynx",
	system.Atari2600: "atari2600",
	system.Atari7800: "atari7800",
	system.NGP:       "ngp",
	system.NGPC:      "ngpc",
	system.WS:        "wswan",
	system.WSC:       "wswanc",
	system.Arcade:    "mame",
}

// BuiltIns returns fresh copies of the profiles shipped with the binary.
func BuiltIns() []Profile {
	generic := folderSet{}
	for _, sys := range system.All() {
		generic[sys.Code] = string(sys.Code)
	}
	return []Profile{
		{
			ID:       "onion",
			Name:     "Onion OS",
			BasePath: "Roms",
			BIOSPath: "BIOS",
			Artwork:  ArtworkRules{Folder: "Imgs", Extension: "png"},
			Systems:  buildSystems(onionFolders, "zip", "7z"),
			BuiltIn:  true,
		},
		{
			ID:       "minui",
			Name:     "MinUI",
			BasePath: "Roms",
			BIOSPath: "Bios",
			Artwork:  ArtworkRules{Folder: ".res", Extension: "png"},
			Systems:  buildSystems(minuiFolders, "zip"),
			BuiltIn:  true,
		},
		{
			ID:       "batocera",
			Name:     "Batocera",
			BasePath: "roms",
			BIOSPath: "bios",
			Artwork:  ArtworkRules{Folder: "images", Extension: "png"},
			Systems:  buildSystems(batoceraFolders, "zip", "7z"),
			BuiltIn:  true,
		},
		{
			ID:       "retroarch-generic",
			Name:     "RetroArch (generic)",
			BasePath: "roms",
			BIOSPath: "system",
			Artwork:  ArtworkRules{Folder: "thumbnails", Extension: "png"},
			Systems:  buildSystems(generic, "zip", "7z"),
			BuiltIn:  true,
		},
	}
}
