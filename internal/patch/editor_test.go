package patch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	commands [][]string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.commands = append(r.commands, append([]string{name}, args...))
	return nil, nil
}

func TestObjcopyInvocations(t *testing.T) {
	r := &recordingRunner{}
	o := NewObjcopy("objcopy", r)
	ctx := context.Background()

	require.NoError(t, o.ExtractDebug(ctx, "kernel.bin", "kernel.sym"))
	require.NoError(t, o.StripDebug(ctx, "kernel.bin"))
	require.NoError(t, o.UpdateSection(ctx, "kernel.bin", ".kernel_symbols", "kernel.map"))
	require.NoError(t, o.AddDebugLink(ctx, "kernel.bin", "kernel.sym"))

	require.Equal(t, [][]string{
		{"objcopy", "--only-keep-debug", "kernel.bin", "kernel.sym"},
		{"objcopy", "--strip-debug", "kernel.bin"},
		{"objcopy", "--update-section", ".kernel_symbols=kernel.map", "kernel.bin"},
		{"objcopy", "--add-gnu-debuglink=kernel.sym", "kernel.bin"},
	}, r.commands)
}
