package symbols

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dailyrun-os/symgen/internal/runner"
)

// ErrExtraction reports that the symbol dump produced no usable output.
var ErrExtraction = errors.New("unable to dump symbols")

// Lister obtains the raw address-sorted symbol listing of a binary by
// running nm (or a compatible tool) on it.
type Lister struct {
	tool   string
	runner runner.Runner
}

func NewLister(tool string, r runner.Runner) *Lister {
	return &Lister{tool: tool, runner: r}
}

// List runs the dump tool with numeric (address) sorting and returns one
// line per symbol. Format per line: "address type name [...]".
func (l *Lister) List(ctx context.Context, kernel string) ([]string, error) {
	out, err := l.runner.Run(ctx, l.tool, "-n", kernel)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %v", ErrExtraction, kernel, err)
	}
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, fmt.Errorf("%w from %s: empty listing", ErrExtraction, kernel)
	}
	return strings.Split(trimmed, "\n"), nil
}
