package dat

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// Parser reads logiqx-style DAT files (No-Intro, FinalBurn Neo, MAME).
type Parser struct{}

// NewParser builds a fresh DAT parser.
func NewParser() Parser {
	return Parser{}
}

// ParseFile opens and parses a DAT file.
func (p Parser) ParseFile(path string) (*DataFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dat %s: %w", path, err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse consumes DAT XML content from the provided reader.
func (p Parser) Parse(r io.Reader) (*DataFile, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false // most dats reference a DTD; relax strict parsing.

	var df DataFile
	if err := decoder.Decode(&df); err != nil {
		return nil, fmt.Errorf("decode dat: %w", err)
	}
	return &df, nil
}

// DataFile is the root node of a DAT file.
type DataFile struct {
	XMLName  xml.Name `xml:"datafile"`
	Header   Header   `xml:"header"`
	Games    []Game   `xml:"game"`
	Machines []Game   `xml:"machine"`
}

// Header carries top-level metadata for the DAT.
type Header struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Version     string `xml:"version"`
	Author      string `xml:"author"`
	Homepage    string `xml:"homepage"`
}

// Game is a single set; MAME calls it a machine.
type Game struct {
	Name         string `xml:"name,attr"`
	IsBios       string `xml:"isbios,attr,omitempty"`
	CloneOf      string `xml:"cloneof,attr,omitempty"`
	RomOf        string `xml:"romof,attr,omitempty"`
	Description  string `xml:"description"`
	Year         string `xml:"year"`
	Manufacturer string `xml:"manufacturer"`
	Roms         []Rom  `xml:"rom"`
}

// Title is the human readable name of the set.
func (g Game) Title() string {
	if d := strings.TrimSpace(g.Description); d != "" {
		return d
	}
	return g.Name
}

// Rom describes a single ROM file entry.
type Rom struct {
	Name   string `xml:"name,attr"`
	Size   int64  `xml:"size,attr,omitempty"`
	CRC    string `xml:"crc,attr,omitempty"`
	MD5    string `xml:"md5,attr,omitempty"`
	SHA1   string `xml:"sha1,attr,omitempty"`
	Merge  string `xml:"merge,attr,omitempty"`
	Status string `xml:"status,attr,omitempty"`
}

// Sets returns games and machines together.
func (df *DataFile) Sets() []Game {
	if df == nil {
		return nil
	}
	out := make([]Game, 0, len(df.Games)+len(df.Machines))
	out = append(out, df.Games...)
	out = append(out, df.Machines...)
	return out
}

// FindGame returns the first set matching the given name.
func (df *DataFile) FindGame(name string) *Game {
	if df == nil {
		return nil
	}
	for i := range df.Games {
		if df.Games[i].Name == name {
			return &df.Games[i]
		}
	}
	for i := range df.Machines {
		if df.Machines[i].Name == name {
			return &df.Machines[i]
		}
	}
	return nil
}
