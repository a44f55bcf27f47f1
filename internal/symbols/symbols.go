package symbols

// Default names of the linker-provided markers delimiting the kernel's
// executable code region. The backtrace code inside the kernel relies on
// both being present in the embedded table.
const (
	DefaultCodeStart = "_kernel_code_start"
	DefaultCodeEnd   = "_kernel_code_end"
)

// Symbol is a named address inside the kernel binary: either a function
// or one of the code-region boundary markers.
type Symbol struct {
	Address uint32
	Name    string
}

// Table is the ordered list of symbols destined for the kernel's reserved
// section. Order matters: the kernel indexes into it by position and
// expects the code-region start marker first. A Table is built once from
// the nm listing and not modified afterwards.
type Table struct {
	Entries []Symbol
}
