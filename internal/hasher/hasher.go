package hasher

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ConsoleKind selects the normalization rules applied before digesting a ROM.
type ConsoleKind int

const (
	KindPlain ConsoleKind = iota
	KindNESHeader
	KindFDSHeader
	KindAtari7800Header
	KindLynxHeader
	KindSNESModulo
	KindPCEModulo
	KindN64ByteOrder
	KindArcadeFilename
	KindNDSAssembly
)

func (k ConsoleKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindNESHeader:
		return "nes"
	case KindFDSHeader:
		return "fds"
	case KindAtari7800Header:
		return "atari7800"
	case KindLynxHeader:
		return "lynx"
	case KindSNESModulo:
		return "snes"
	case KindPCEModulo:
		return "pce"
	case KindN64ByteOrder:
		return "n64"
	case KindArcadeFilename:
		return "arcade"
	case KindNDSAssembly:
		return "nds"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrMalformedRom is matched by every MalformedRomError.
var ErrMalformedRom = errors.New("malformed rom")

// MalformedRomError reports a payload too small for its console format.
type MalformedRomError struct {
	Console string
	MinSize int
	Size    int
}

func (e *MalformedRomError) Error() string {
	return fmt.Sprintf("malformed %s rom: need at least %d bytes, got %d", e.Console, e.MinSize, e.Size)
}

func (e *MalformedRomError) Is(target error) bool { return target == ErrMalformedRom }

// Identification is the console-normalized digest of a ROM.
type Identification struct {
	Digest string
	Note   string
}

type headerRule struct {
	size   int
	offset int
	magic  []byte
}

var headerRules = map[ConsoleKind]headerRule{
	KindNESHeader:       {size: 16, offset: 0, magic: []byte("NES\x1a")},
	KindFDSHeader:       {size: 16, offset: 0, magic: []byte("FDS\x1a")},
	KindLynxHeader:      {size: 64, offset: 0, magic: []byte("LYNX\x00")},
	KindAtari7800Header: {size: 128, offset: 1, magic: []byte("ATARI7800")},
}

const (
	moduloBlock  = 1024
	moduloHeader = 512
)

// Identify computes the identification digest of payload for the console kind.
// filename is only consulted by filename-identity consoles.
func Identify(kind ConsoleKind, filename string, payload []byte) (Identification, error) {
	switch kind {
	case KindNESHeader, KindFDSHeader, KindLynxHeader, KindAtari7800Header:
		return Identification{Digest: digest(stripMagicHeader(headerRules[kind], payload))}, nil
	case KindSNESModulo, KindPCEModulo:
		return Identification{Digest: digest(stripModuloHeader(payload))}, nil
	case KindN64ByteOrder:
		return identifyN64(payload)
	case KindArcadeFilename:
		return identifyArcade(filename), nil
	case KindNDSAssembly:
		return identifyNDS(payload)
	default:
		return Identification{Digest: digest(payload)}, nil
	}
}

// ContentDigest is the plain digest of the ROM payload used for catalog dedup.
func ContentDigest(payload []byte) string {
	return digest(payload)
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func stripMagicHeader(rule headerRule, payload []byte) []byte {
	if len(payload) < rule.size {
		return payload
	}
	end := rule.offset + len(rule.magic)
	if !bytes.Equal(payload[rule.offset:end], rule.magic) {
		return payload
	}
	return payload[rule.size:]
}

func stripModuloHeader(payload []byte) []byte {
	if len(payload)%moduloBlock == moduloHeader {
		return payload[moduloHeader:]
	}
	return payload
}

var (
	n64Native     = []byte{0x80, 0x37, 0x12, 0x40}
	n64ByteSwap   = []byte{0x37, 0x80, 0x40, 0x12}
	n64WordSwap   = []byte{0x40, 0x12, 0x37, 0x80}
	n64MinPayload = 4
)

func identifyN64(payload []byte) (Identification, error) {
	if len(payload) < n64MinPayload {
		return Identification{}, &MalformedRomError{Console: KindN64ByteOrder.String(), MinSize: n64MinPayload, Size: len(payload)}
	}
	head := payload[:4]
	switch {
	case bytes.Equal(head, n64Native):
		return Identification{Digest: digest(payload)}, nil
	case bytes.Equal(head, n64ByteSwap):
		return Identification{Digest: digest(swapPairs(payload)), Note: "converted from byte-swapped (v64) order"}, nil
	case bytes.Equal(head, n64WordSwap):
		return Identification{Digest: digest(reverseWords(payload)), Note: "converted from little-endian (n64) order"}, nil
	default:
		return Identification{
			Digest: digest(payload),
			Note:   fmt.Sprintf("unknown n64 byte order %x, hashed as-is", head),
		}, nil
	}
}

func swapPairs(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	for i := 0; i+1 < len(out); i += 2 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return out
}

func reverseWords(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	for i := 0; i+3 < len(out); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = out[i+3], out[i+2], out[i+1], out[i]
	}
	return out
}

func identifyArcade(filename string) Identification {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return Identification{Digest: digest([]byte(base))}
}

const (
	ndsHeaderSize = 0x160
	ndsIconSize   = 0xA00
)

type ndsSegment struct {
	offsetField int
	sizeField   int
	fixedSize   uint32
}

// arm9 code, arm7 code, icon/title block.
var ndsSegments = []ndsSegment{
	{offsetField: 0x20, sizeField: 0x2C},
	{offsetField: 0x30, sizeField: 0x3C},
	{offsetField: 0x68, fixedSize: ndsIconSize},
}

func identifyNDS(payload []byte) (Identification, error) {
	if len(payload) < ndsHeaderSize {
		return Identification{}, &MalformedRomError{Console: KindNDSAssembly.String(), MinSize: ndsHeaderSize, Size: len(payload)}
	}
	header := payload[:ndsHeaderSize]
	buf := make([]byte, 0, ndsHeaderSize+ndsIconSize)
	buf = append(buf, header...)
	skipped := 0
	for _, seg := range ndsSegments {
		offset := binary.LittleEndian.Uint32(header[seg.offsetField:])
		size := seg.fixedSize
		if size == 0 {
			size = binary.LittleEndian.Uint32(header[seg.sizeField:])
		}
		if offset == 0 || size == 0 || uint64(offset)+uint64(size) > uint64(len(payload)) {
			skipped++
			continue
		}
		buf = append(buf, payload[offset:offset+size]...)
	}
	id := Identification{Digest: digest(buf)}
	if skipped > 0 {
		id.Note = fmt.Sprintf("%d nds segment(s) omitted", skipped)
	}
	return id, nil
}
