// Package symfile implements the on-disk symbol table format consumed by
// the kernel's panic-time symbolizer.
//
// The file is a sequence of 4-byte little-endian unsigned integers and raw
// name bytes:
//
//	uint32 count
//	count times:
//	  uint32 size       length of (name + NUL) plus the 8 bytes of the
//	                    size and address fields themselves
//	  uint32 address
//	  bytes  name       UTF-8, NUL-terminated
//
// The kernel walks the table by chaining the size fields, so a wrong size
// in any entry corrupts every lookup after it.
package symfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dailyrun-os/symgen/internal/symbols"
)

// entryOverhead is the byte size of the two fixed fields (size, address)
// counted into each entry's size value.
const entryOverhead = 8

// ErrEncoding reports a symbol that cannot be represented in the format.
var ErrEncoding = errors.New("unencodable symbol")

// MapPath derives the symbol table file location from the kernel binary
// location: same directory, same stem, ".map" suffix.
func MapPath(kernel string) string {
	return strings.TrimSuffix(kernel, filepath.Ext(kernel)) + ".map"
}

// Encode serializes the table into its on-disk byte layout.
func Encode(t *symbols.Table) ([]byte, error) {
	var buf bytes.Buffer
	putUint32(&buf, uint32(len(t.Entries)))
	for _, sym := range t.Entries {
		if sym.Name == "" {
			return nil, fmt.Errorf("%w: empty name at address %#x", ErrEncoding, sym.Address)
		}
		if strings.IndexByte(sym.Name, 0) >= 0 {
			return nil, fmt.Errorf("%w: name %q contains a NUL byte", ErrEncoding, sym.Name)
		}
		putUint32(&buf, uint32(len(sym.Name)+1+entryOverhead))
		putUint32(&buf, sym.Address)
		buf.WriteString(sym.Name)
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

// Decode parses an encoded table back into its ordered symbol list. It is
// the exact inverse of Encode and rejects truncated, inconsistent or
// trailing input.
func Decode(data []byte) (*symbols.Table, error) {
	count, rest, err := takeUint32(data)
	if err != nil {
		return nil, fmt.Errorf("reading entry count: %w", err)
	}
	entries := make([]symbols.Symbol, 0, min(int(count), 4096))
	for i := uint32(0); i < count; i++ {
		var size, addr uint32
		if size, rest, err = takeUint32(rest); err != nil {
			return nil, fmt.Errorf("entry %d: reading size: %w", i, err)
		}
		if addr, rest, err = takeUint32(rest); err != nil {
			return nil, fmt.Errorf("entry %d: reading address: %w", i, err)
		}
		nameLen := int(size) - entryOverhead - 1
		if nameLen < 1 {
			return nil, fmt.Errorf("entry %d: size %d leaves no room for a name", i, size)
		}
		if nameLen+1 > len(rest) {
			return nil, fmt.Errorf("entry %d: truncated name", i)
		}
		if rest[nameLen] != 0 {
			return nil, fmt.Errorf("entry %d: name is not NUL-terminated", i)
		}
		entries = append(entries, symbols.Symbol{Address: addr, Name: string(rest[:nameLen])})
		rest = rest[nameLen+1:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after last entry", len(rest))
	}
	return &symbols.Table{Entries: entries}, nil
}

// WriteFile encodes the table and writes the blob to path in a single
// sequential write, replacing any previous file. It returns the blob size
// in bytes.
func WriteFile(path string, t *symbols.Table) (int, error) {
	blob, err := Encode(t)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return 0, err
	}
	return len(blob), nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func takeUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, errors.New("unexpected end of data")
	}
	return binary.LittleEndian.Uint32(data), data[4:], nil
}
