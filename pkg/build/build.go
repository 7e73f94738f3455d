// Package build runs the whole toolchain: source text to tokens, tokens to
// modules, modules to a linked binary.
package build

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"asmvm/pkg/asm"
	"asmvm/pkg/link"
)

// Source is one compilation unit. Name appears in diagnostics and in the
// positions of the module's tokens.
type Source struct {
	Name string
	Text string
}

type options struct {
	logger *slog.Logger
	jobs   int
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithJobs bounds the number of units translated at once. Values below one
// select GOMAXPROCS.
func WithJobs(n int) Option {
	return func(o *options) { o.jobs = n }
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.jobs < 1 {
		o.jobs = runtime.GOMAXPROCS(0)
	}
	return o
}

// Translate translates every source concurrently. Modules come back in the
// order of sources. When several units fail, the error of the first one in
// that order is returned.
func Translate(ctx context.Context, sources []Source, opts ...Option) ([]*asm.Module, error) {
	o := newOptions(opts)

	modules := make([]*asm.Module, len(sources))
	errs := make([]error, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			m, err := asm.TranslateSource(src.Name, src.Text)
			if err != nil {
				errs[i] = err
				return nil
			}
			o.logger.Debug("translated", "module", src.Name, "records", len(m.Records), "size", m.Size())
			modules[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return modules, nil
}

// Build translates and links sources into a binary.
func Build(ctx context.Context, sources []Source, opts ...Option) (*link.Binary, error) {
	if len(sources) == 0 {
		return nil, errors.New("no source files")
	}
	modules, err := Translate(ctx, sources, opts...)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return link.Link(modules, link.WithLogger(o.logger))
}

// ReadSources loads each path as one source, named after the path.
func ReadSources(paths []string) ([]Source, error) {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		sources = append(sources, Source{Name: p, Text: string(data)})
	}
	return sources, nil
}

// BuildFiles is Build over files on disk.
func BuildFiles(ctx context.Context, paths []string, opts ...Option) (*link.Binary, error) {
	sources, err := ReadSources(paths)
	if err != nil {
		return nil, err
	}
	return Build(ctx, sources, opts...)
}
