// Package patch embeds the encoded symbol table into the kernel binary
// and splits its debug information into a sibling .sym file.
//
// The sequence mutates the kernel in place across several objcopy calls,
// so a failure partway through would otherwise leave a stripped but
// unpatched binary behind. The patcher snapshots the binary before the
// first in-place step and restores it when a later step fails.
package patch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// CapacityError reports an encoded table too large for the reserved
// section. The kernel binary is guaranteed untouched when it is returned.
type CapacityError struct {
	BlobSize    int64
	SectionSize int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("symbol table of %d bytes exceeds the %d byte reserved section", e.BlobSize, e.SectionSize)
}

// StepError reports a failed editor invocation within the patch sequence.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("patch step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// DebugPath derives the split debug file location from the kernel binary
// location: same directory, same stem, ".sym" suffix.
func DebugPath(kernel string) string {
	return strings.TrimSuffix(kernel, filepath.Ext(kernel)) + ".sym"
}

// Patcher runs the debug-split and table-embed sequence against a kernel
// binary, guarded by the reserved section's byte budget.
type Patcher struct {
	editor  Editor
	section string
	budget  int64
}

func NewPatcher(editor Editor, section string, budget int64) *Patcher {
	return &Patcher{editor: editor, section: section, budget: budget}
}

// Apply checks the encoded blob at mapPath against the section budget and
// then runs the four edit steps in order:
//
//  1. extract debug info into <stem>.sym
//  2. strip debug info from the kernel in place
//  3. overwrite the reserved section with the blob
//  4. add a debug link to the .sym file
//
// The budget check runs strictly first; an oversized blob leaves the
// kernel unmodified. Any step failure aborts the remaining steps.
func (p *Patcher) Apply(ctx context.Context, kernel, mapPath string) error {
	fi, err := os.Stat(mapPath)
	if err != nil {
		return fmt.Errorf("symbol table blob: %w", err)
	}
	if fi.Size() > p.budget {
		return &CapacityError{BlobSize: fi.Size(), SectionSize: p.budget}
	}

	debugPath := DebugPath(kernel)
	if err := p.editor.ExtractDebug(ctx, kernel, debugPath); err != nil {
		return &StepError{Step: "extract-debug", Err: err}
	}

	// The kernel is mutated in place from here on.
	snapshot, err := snapshotFile(kernel)
	if err != nil {
		return fmt.Errorf("snapshotting %s: %w", kernel, err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"strip-debug", func() error { return p.editor.StripDebug(ctx, kernel) }},
		{"update-section", func() error { return p.editor.UpdateSection(ctx, kernel, p.section, mapPath) }},
		{"add-debuglink", func() error { return p.editor.AddDebugLink(ctx, kernel, debugPath) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			restore(snapshot, kernel)
			return &StepError{Step: step.name, Err: err}
		}
	}

	if err := os.Remove(snapshot); err != nil {
		slog.Warn("Failed to remove pre-patch snapshot", "path", snapshot, "error", err)
	}
	return nil
}

// snapshotFile copies the file into a temporary sibling, preserving its
// mode, and returns the copy's path.
func snapshotFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".prepatch-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Chmod(fi.Mode()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// restore puts the snapshot back in place of the kernel binary. A failed
// restore is logged but never masks the step error that triggered it.
func restore(snapshot, kernel string) {
	if err := os.Rename(snapshot, kernel); err != nil {
		slog.Error("Failed to restore kernel binary from snapshot",
			"snapshot", snapshot, "kernel", kernel, "error", err)
		return
	}
	slog.Info("Restored kernel binary after failed patch step", "kernel", kernel)
}
