package patch

import (
	"context"
	"fmt"

	"github.com/dailyrun-os/symgen/internal/runner"
)

// Editor is the binary-editing capability the patch sequence needs. The
// production implementation drives objcopy; tests record invocations
// instead of touching real binaries.
type Editor interface {
	// ExtractDebug copies all debug sections of the binary into a new
	// file, leaving the binary itself untouched.
	ExtractDebug(ctx context.Context, binary, debugOut string) error
	// StripDebug removes debug sections from the binary in place.
	StripDebug(ctx context.Context, binary string) error
	// UpdateSection replaces the content of a named section of the binary
	// with the raw bytes of the given file.
	UpdateSection(ctx context.Context, binary, section, contentPath string) error
	// AddDebugLink appends a .gnu_debuglink record pointing debuggers at
	// the split debug file.
	AddDebugLink(ctx context.Context, binary, debugPath string) error
}

// Objcopy implements Editor with GNU objcopy (or a compatible tool).
type Objcopy struct {
	tool   string
	runner runner.Runner
}

func NewObjcopy(tool string, r runner.Runner) *Objcopy {
	return &Objcopy{tool: tool, runner: r}
}

func (o *Objcopy) ExtractDebug(ctx context.Context, binary, debugOut string) error {
	_, err := o.runner.Run(ctx, o.tool, "--only-keep-debug", binary, debugOut)
	return err
}

func (o *Objcopy) StripDebug(ctx context.Context, binary string) error {
	_, err := o.runner.Run(ctx, o.tool, "--strip-debug", binary)
	return err
}

func (o *Objcopy) UpdateSection(ctx context.Context, binary, section, contentPath string) error {
	_, err := o.runner.Run(ctx, o.tool, "--update-section", fmt.Sprintf("%s=%s", section, contentPath), binary)
	return err
}

func (o *Objcopy) AddDebugLink(ctx context.Context, binary, debugPath string) error {
	_, err := o.runner.Run(ctx, o.tool, fmt.Sprintf("--add-gnu-debuglink=%s", debugPath), binary)
	return err
}
