// Command symgen post-processes a compiled kernel binary for release:
// it extracts the kernel's function symbols, encodes them into the compact
// table the panic-time symbolizer reads, embeds the table into the
// binary's reserved section, and splits the debug information into a
// sibling .sym file linked back from the stripped kernel.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/dailyrun-os/symgen/internal/patch"
	"github.com/dailyrun-os/symgen/internal/runner"
	"github.com/dailyrun-os/symgen/internal/symbols"
	"github.com/dailyrun-os/symgen/internal/symfile"
)

var errMissingInput = errors.New("no such file or directory")

var cfg struct {
	kernel      string
	sectionSize int64

	nmTool      string
	objcopyTool string
	section     string
	codeStart   string
	codeEnd     string
	printMap    bool
	verbose     bool
}

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]),
		"Embed a backtrace symbol table into a kernel binary and split out its debug info.")
	app.HelpFlag.Short('h')

	app.Arg("kernel", "Kernel binary location.").Required().StringVar(&cfg.kernel)
	app.Arg("section-size", "Byte capacity of the reserved symbol table section.").
		Required().Int64Var(&cfg.sectionSize)

	app.Flag("nm", "Symbol dump tool to invoke.").Default("nm").StringVar(&cfg.nmTool)
	app.Flag("objcopy", "Binary editing tool to invoke.").Default("objcopy").StringVar(&cfg.objcopyTool)
	app.Flag("section", "Name of the reserved symbol table section.").
		Default(".kernel_symbols").StringVar(&cfg.section)
	app.Flag("code-start", "Name of the code-region start marker.").
		Default(symbols.DefaultCodeStart).StringVar(&cfg.codeStart)
	app.Flag("code-end", "Name of the code-region end marker.").
		Default(symbols.DefaultCodeEnd).StringVar(&cfg.codeEnd)
	app.Flag("print-map", "Decode and print the written symbol table.").BoolVar(&cfg.printMap)
	app.Flag("verbose", "Enable verbose logging.").Short('v').BoolVar(&cfg.verbose)

	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(context.Background(), runner.Exec{}); err != nil {
		slog.Error("Failed to generate kernel symbol table", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, r runner.Runner) error {
	if cfg.sectionSize <= 0 {
		return fmt.Errorf("section size must be a positive byte count, got %d", cfg.sectionSize)
	}
	if _, err := os.Stat(cfg.kernel); err != nil {
		return fmt.Errorf("%w: '%s'", errMissingInput, cfg.kernel)
	}

	slog.Info("Extracting symbol table", "kernel", cfg.kernel)
	lister := symbols.NewLister(cfg.nmTool, r)
	lines, err := lister.List(ctx, cfg.kernel)
	if err != nil {
		return err
	}

	table, err := symbols.NewFilter(cfg.codeStart, cfg.codeEnd).Build(lines)
	if err != nil {
		return err
	}

	mapPath := symfile.MapPath(cfg.kernel)
	size, err := symfile.WriteFile(mapPath, table)
	if err != nil {
		return err
	}
	slog.Info("Saved kernel function symbols",
		"count", len(table.Entries), "bytes", size, "path", mapPath)

	slog.Info("Generating debug and stripped binary files", "kernel", cfg.kernel)
	patcher := patch.NewPatcher(patch.NewObjcopy(cfg.objcopyTool, r), cfg.section, cfg.sectionSize)
	if err := patcher.Apply(ctx, cfg.kernel, mapPath); err != nil {
		return err
	}

	if cfg.printMap {
		if err := printMap(mapPath); err != nil {
			return err
		}
	}
	return nil
}

func printMap(mapPath string) error {
	data, err := os.ReadFile(mapPath)
	if err != nil {
		return err
	}
	table, err := symfile.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", mapPath, err)
	}
	for _, sym := range table.Entries {
		fmt.Printf("%08x %s\n", sym.Address, sym.Name)
	}
	return nil
}
