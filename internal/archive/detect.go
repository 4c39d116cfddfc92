package archive

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/meigma/arcguard/core"
)

// sniffLen covers the first tar header block, which is the longest
// signature checked.
const sniffLen = 512

type magicKind int

const (
	kindUnknown magicKind = iota
	kindZip
	kindTar
	kindGzip
	kindZstd
	kindXz
	kindBzip2
	kindLz4
	kindLzip
)

var kindNames = map[magicKind]string{
	kindUnknown: "unknown",
	kindZip:     "zip",
	kindTar:     "tar",
	kindGzip:    "gzip",
	kindZstd:    "zstd",
	kindXz:      "xz",
	kindBzip2:   "bzip2",
	kindLz4:     "lz4",
	kindLzip:    "lzip",
}

func (k magicKind) String() string {
	return kindNames[k]
}

// format maps a compression kind to the compressed tar format it wraps.
func (k magicKind) format() core.Format {
	switch k {
	case kindGzip:
		return core.FormatTarGzip
	case kindZstd:
		return core.FormatTarZstd
	case kindXz:
		return core.FormatTarXz
	case kindBzip2:
		return core.FormatTarBzip2
	case kindLz4:
		return core.FormatTarLz4
	case kindLzip:
		return core.FormatTarLzip
	case kindZip:
		return core.FormatZip
	default:
		return core.FormatTar
	}
}

// Magic numbers, ordered longest first where prefixes could overlap.
var magics = []struct {
	kind  magicKind
	magic []byte
}{
	{kindXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{kindZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{kindLz4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{kindLzip, []byte("LZIP")},
	{kindZip, []byte("PK\x03\x04")},
	{kindZip, []byte("PK\x05\x06")},
	{kindZip, []byte("PK\x07\x08")},
	{kindBzip2, []byte("BZh")},
	{kindGzip, []byte{0x1f, 0x8b}},
}

// detect identifies the container or compression of head.
func detect(head []byte) magicKind {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.kind
		}
	}
	if isTarHeader(head) {
		return kindTar
	}
	return kindUnknown
}

// isTarHeader reports whether head starts with a tar header block: either
// the POSIX/GNU "ustar" magic at offset 257, a valid header checksum for
// pre-POSIX archives, or the all-zero end-of-archive block of an empty tar.
func isTarHeader(head []byte) bool {
	if len(head) < sniffLen {
		return false
	}
	block := head[:sniffLen]
	if bytes.Equal(block[257:262], []byte("ustar")) {
		return true
	}
	if isZeroBlock(block) {
		return true
	}
	return validTarChecksum(block)
}

func isZeroBlock(block []byte) bool {
	for _, b := range block {
		if b != 0 {
			return false
		}
	}
	return true
}

// validTarChecksum verifies the header checksum field at offset 148, which is
// computed with the checksum field itself treated as spaces.
func validTarChecksum(block []byte) bool {
	field := strings.TrimRight(strings.TrimSpace(string(block[148:156])), "\x00 ")
	if field == "" {
		return false
	}
	want, err := strconv.ParseInt(field, 8, 64)
	if err != nil {
		return false
	}

	var unsigned, signed int64
	for i, b := range block {
		if i >= 148 && i < 156 {
			b = ' '
		}
		unsigned += int64(b)
		signed += int64(int8(b))
	}
	return want == unsigned || want == signed
}
