package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dailyrun-os/symgen/internal/patch"
	"github.com/dailyrun-os/symgen/internal/symbols"
	"github.com/dailyrun-os/symgen/internal/symfile"
)

const listing = `00100000 T _start
00100010 T multiboot_entry
00100020 T _kernel_code_start
00100040 T kernel_main
00100080 t pit_irq_handler
00100100 D boot_params
00100200 T printk
00108000 B early_heap
0010f000 T _kernel_code_end
`

// pipelineRunner answers nm with a canned listing and records every
// objcopy invocation.
type pipelineRunner struct {
	listing  string
	nmErr    error
	commands [][]string
}

func (r *pipelineRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if name == "nm" {
		if r.nmErr != nil {
			return nil, r.nmErr
		}
		return []byte(r.listing), nil
	}
	r.commands = append(r.commands, append([]string{name}, args...))
	return nil, nil
}

func resetCfg(t *testing.T, kernel string, sectionSize int64) {
	t.Helper()
	cfg.kernel = kernel
	cfg.sectionSize = sectionSize
	cfg.nmTool = "nm"
	cfg.objcopyTool = "objcopy"
	cfg.section = ".kernel_symbols"
	cfg.codeStart = symbols.DefaultCodeStart
	cfg.codeEnd = symbols.DefaultCodeEnd
	cfg.printMap = false
	cfg.verbose = false
}

func writeKernel(t *testing.T) string {
	t.Helper()
	kernel := filepath.Join(t.TempDir(), "kernel.bin")
	require.NoError(t, os.WriteFile(kernel, []byte("ELF imitation"), 0o755))
	return kernel
}

func TestRunFullPipeline(t *testing.T) {
	kernel := writeKernel(t)
	resetCfg(t, kernel, 4096)
	r := &pipelineRunner{listing: listing}

	require.NoError(t, run(context.Background(), r))

	// The written map decodes back to the filtered, reordered table.
	mapPath := symfile.MapPath(kernel)
	data, err := os.ReadFile(mapPath)
	require.NoError(t, err)
	table, err := symfile.Decode(data)
	require.NoError(t, err)

	names := make([]string, 0, len(table.Entries))
	for _, sym := range table.Entries {
		names = append(names, sym.Name)
	}
	require.Equal(t, []string{
		"_kernel_code_start",
		"multiboot_entry",
		"kernel_main",
		"pit_irq_handler",
		"printk",
		"_kernel_code_end",
	}, names)
	require.Equal(t, uint32(0x00100020), table.Entries[0].Address)

	// All four patch steps ran, in order, against the right files.
	debugPath := patch.DebugPath(kernel)
	require.Equal(t, [][]string{
		{"objcopy", "--only-keep-debug", kernel, debugPath},
		{"objcopy", "--strip-debug", kernel},
		{"objcopy", "--update-section", ".kernel_symbols=" + mapPath, kernel},
		{"objcopy", "--add-gnu-debuglink=" + debugPath, kernel},
	}, r.commands)
}

func TestRunCapacityExceeded(t *testing.T) {
	kernel := writeKernel(t)
	// A one-byte budget cannot hold even the table header.
	resetCfg(t, kernel, 1)
	r := &pipelineRunner{listing: listing}

	err := run(context.Background(), r)
	var capErr *patch.CapacityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, int64(1), capErr.SectionSize)
	require.Empty(t, r.commands)

	data, readErr := os.ReadFile(kernel)
	require.NoError(t, readErr)
	require.Equal(t, []byte("ELF imitation"), data)
}

func TestRunMissingKernel(t *testing.T) {
	resetCfg(t, filepath.Join(t.TempDir(), "nope.bin"), 4096)
	r := &pipelineRunner{listing: listing}

	err := run(context.Background(), r)
	require.ErrorIs(t, err, errMissingInput)
	require.Empty(t, r.commands)
}

func TestRunRejectsNonPositiveSectionSize(t *testing.T) {
	kernel := writeKernel(t)
	for _, size := range []int64{0, -1} {
		resetCfg(t, kernel, size)
		err := run(context.Background(), &pipelineRunner{listing: listing})
		require.Error(t, err)
		require.True(t, strings.Contains(err.Error(), "positive"))
	}
}

func TestRunEmptyDump(t *testing.T) {
	kernel := writeKernel(t)
	resetCfg(t, kernel, 4096)
	r := &pipelineRunner{listing: "\n"}

	err := run(context.Background(), r)
	require.ErrorIs(t, err, symbols.ErrExtraction)
	require.Empty(t, r.commands)

	// Nothing was written next to the kernel.
	_, statErr := os.Stat(symfile.MapPath(kernel))
	require.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRunNmFailure(t *testing.T) {
	kernel := writeKernel(t)
	resetCfg(t, kernel, 4096)
	r := &pipelineRunner{nmErr: errors.New("exit status 1")}

	err := run(context.Background(), r)
	require.ErrorIs(t, err, symbols.ErrExtraction)
	require.Empty(t, r.commands)
}
