package symbols

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Filter reduces a raw nm listing to the symbols relevant to runtime
// backtraces: text-section functions plus the two code-region boundary
// markers.
type Filter struct {
	codeStart string
	codeEnd   string
}

func NewFilter(codeStart, codeEnd string) *Filter {
	return &Filter{codeStart: codeStart, codeEnd: codeEnd}
}

// Select keeps lines whose type code is 't' or 'T', or whose name matches
// one of the boundary markers, and extracts (address, name) from each.
// Lines with fewer than three columns are skipped; a selected line with an
// unparseable address is an error.
func (f *Filter) Select(lines []string) ([]Symbol, error) {
	var selected []Symbol
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		typ, name := fields[1], fields[2]
		if typ != "t" && typ != "T" && name != f.codeStart && name != f.codeEnd {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q for symbol %s: %v", fields[0], name, err)
		}
		selected = append(selected, Symbol{Address: uint32(addr), Name: name})
	}
	return selected, nil
}

// Build selects the backtrace-relevant symbols and applies the fixed
// reordering, returning the final table. It warns when the resulting table
// does not begin with the code-region start marker: the reordering relies
// on the listing's address order placing the marker where the swap expects
// it, which the linker script does not strictly guarantee.
func (f *Filter) Build(lines []string) (*Table, error) {
	selected, err := f.Select(lines)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no function symbols in listing", ErrExtraction)
	}
	entries := reorder(selected)
	if len(entries) == 0 || entries[0].Name != f.codeStart {
		slog.Warn("Symbol table does not start with the code-region marker",
			"want", f.codeStart, "table", firstName(entries))
	}
	return &Table{Entries: entries}, nil
}

// reorder applies the historical transformation expected by the kernel:
// the first address-ordered entry is assumed to be the whole-image start
// marker and dropped, then the next entry is moved behind its successor.
// The transformation is positional, not name-based, and is kept exactly
// as the kernel's build has always produced it.
func reorder(entries []Symbol) []Symbol {
	out := append([]Symbol(nil), entries[1:]...)
	if len(out) >= 2 {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

func firstName(entries []Symbol) string {
	if len(entries) == 0 {
		return ""
	}
	return entries[0].Name
}
