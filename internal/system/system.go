package system

import (
	"sort"
	"strings"

	"github.com/xxxsen/romsync/internal/hasher"
)

// Code is the internal identifier of a supported system.
type Code string

const (
	NES       Code = "nes"
	FDS       Code = "fds"
	SNES      Code = "snes"
	N64       Code = "n64"
	GB        Code = "gb"
	GBC       Code = "gbc"
	GBA       Code = "gba"
	NDS       Code = "nds"
	VB        Code = "vb"
	Genesis   Code = "genesis"
	SMS       Code = "sms"
	GG        Code = "gg"
	Sega32X   Code = "32x"
	SG1000    Code = "sg1000"
	PCE       Code = "pce"
	Lynx      Code = "lynx"
	Atari2600 Code = "a2600"
	Atari7800 Code = "a7800"
	NGP       Code = "ngp"
	NGPC      Code = "ngpc"
	WS        Code = "ws"
	WSC       Code = "wsc"
	Arcade    Code = "arcade"
)

// System describes one console family known to the catalog.
type System struct {
	Code Code
	Name string
	// ConsoleID is the identifier used by the external hash registry, 0 when unknown.
	ConsoleID  int
	Kind       hasher.ConsoleKind
	Extensions []string
}

var systems = []System{
	{Code: NES, Name: "Nintendo Entertainment System", ConsoleID: 7, Kind: hasher.KindNESHeader, Extensions: []string{"nes", "unf", "unif"}},
	{Code: FDS, Name: "Famicom Disk System", ConsoleID: 7, Kind: hasher.KindFDSHeader, Extensions: []string{"fds"}},
	{Code: SNES, Name: "Super Nintendo", ConsoleID: 3, Kind: hasher.KindSNESModulo, Extensions: []string{"sfc", "smc", "swc", "fig"}},
	{Code: N64, Name: "Nintendo 64", ConsoleID: 2, Kind: hasher.KindN64ByteOrder, Extensions: []string{"n64", "z64", "v64"}},
	{Code: GB, Name: "Game Boy", ConsoleID: 4, Kind: hasher.KindPlain, Extensions: []string{"gb"}},
	{Code: GBC, Name: "Game Boy Color", ConsoleID: 6, Kind: hasher.KindPlain, Extensions: []string{"gbc"}},
	{Code: GBA, Name: "Game Boy Advance", ConsoleID: 5, Kind: hasher.KindPlain, Extensions: []string{"gba"}},
	{Code: NDS, Name: "Nintendo DS", ConsoleID: 18, Kind: hasher.KindNDSAssembly, Extensions: []string{"nds"}},
	{Code: VB, Name: "Virtual Boy", ConsoleID: 28, Kind: hasher.KindPlain, Extensions: []string{"vb", "vboy"}},
	{Code: Genesis, Name: "Sega Genesis / Mega Drive", ConsoleID: 1, Kind: hasher.KindPlain, Extensions: []string{"md", "gen", "smd"}},
	{Code: SMS, Name: "Sega Master System", ConsoleID: 11, Kind: hasher.KindPlain, Extensions: []string{"sms"}},
	{Code: GG, Name: "Sega Game Gear", ConsoleID: 15, Kind: hasher.KindPlain, Extensions: []string{"gg"}},
	{Code: Sega32X, Name: "Sega 32X", ConsoleID: 10, Kind: hasher.KindPlain, Extensions: []string{"32x"}},
	{Code: SG1000, Name: "Sega SG-1000", ConsoleID: 33, Kind: hasher.KindPlain, Extensions: []string{"sg"}},
	{Code: PCE, Name: "PC Engine / TurboGrafx-16", ConsoleID: 8, Kind: hasher.KindPCEModulo, Extensions: []string{"pce"}},
	{Code: Lynx, Name: "Atari Lynx", ConsoleID: 13, Kind: hasher.KindLynxHeader, Extensions: []string{"lnx"}},
	{Code: Atari2600, Name: "Atari 2600", ConsoleID: 25, Kind: hasher.KindPlain, Extensions: []string{"a26"}},
	{Code: Atari7800, Name: "Atari 7800", ConsoleID: 51, Kind: hasher.KindAtari7800Header, Extensions: []string{"a78"}},
	{Code: NGP, Name: "Neo Geo Pocket", ConsoleID: 14, Kind: hasher.KindPlain, Extensions: []string{"ngp"}},
	{Code: NGPC, Name: "Neo Geo Pocket Color", ConsoleID: 14, Kind: hasher.KindPlain, Extensions: []string{"ngc"}},
	{Code: WS, Name: "WonderSwan", ConsoleID: 53, Kind: hasher.KindPlain, Extensions: []string{"ws"}},
	{Code: WSC, Name: "WonderSwan Color", ConsoleID: 53, Kind: hasher.KindPlain, Extensions: []string{"wsc"}},
	{Code: Arcade, Name: "Arcade", ConsoleID: 27, Kind: hasher.KindArcadeFilename, Extensions: []string{"zip"}},
}

var archiveExts = map[string]struct{}{
	"zip": {},
	"7z":  {},
}

var (
	byCode = make(map[Code]System, len(systems))
	byExt  = make(map[string]Code)
)

func init() {
	for _, s := range systems {
		byCode[s.Code] = s
		for _, ext := range s.Extensions {
			byExt[ext] = s.Code
		}
	}
}

// NormalizeExt lower-cases an extension and strips the leading dot.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// FromExtension resolves the system owning the given file extension.
func FromExtension(ext string) (Code, bool) {
	code, ok := byExt[NormalizeExt(ext)]
	return code, ok
}

// Lookup returns the system registered under code.
func Lookup(code Code) (System, bool) {
	s, ok := byCode[Code(strings.ToLower(string(code)))]
	return s, ok
}

// IsKnown reports whether code names a supported system.
func IsKnown(code Code) bool {
	_, ok := Lookup(code)
	return ok
}

// IsArchiveExt reports whether ext is a container format handled by the extractor.
func IsArchiveExt(ext string) bool {
	_, ok := archiveExts[NormalizeExt(ext)]
	return ok
}

// IsRomExt reports whether ext belongs to any supported system.
func IsRomExt(ext string) bool {
	_, ok := FromExtension(ext)
	return ok
}

// IsInnerRomExt reports whether an archive entry with ext counts as a playable ROM.
// Nested containers never count, so an arcade zip packed inside another archive is ignored.
func IsInnerRomExt(ext string) bool {
	return IsRomExt(ext) && !IsArchiveExt(ext)
}

// All returns every supported system ordered by code.
func All() []System {
	out := make([]System, len(systems))
	copy(out, systems)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
