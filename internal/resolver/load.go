package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/phobologic/phpconsistent/internal/discover"
	"github.com/phobologic/phpconsistent/internal/lang"
	"github.com/phobologic/phpconsistent/internal/model"
	"github.com/phobologic/phpconsistent/internal/parse"
)

// DefaultMaxFileSize is the largest source file Load parses.
const DefaultMaxFileSize = 1_000_000 // 1 MB

// ErrNoSources is returned by Load when the root holds no parseable PHP files.
var ErrNoSources = errors.New("no PHP sources found")

// Options controls which sources Load indexes.
type Options struct {
	Excludes    []string
	SkipTests   bool
	MaxFileSize int64
	Workers     int
	Logger      *zap.Logger
}

// Load discovers, parses and indexes the PHP sources under root.
func Load(ctx context.Context, root string, opts Options) (*Index, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	files, err := discover.Files(root, discover.Options{Excludes: opts.Excludes, SkipTests: opts.SkipTests})
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	files = filterBySize(root, files, opts.MaxFileSize, log)
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoSources)
	}

	decls, err := parseFilesConcurrent(ctx, root, files, opts.Workers, log)
	if err != nil {
		return nil, err
	}
	ix := NewIndex(decls)
	log.Info("indexed sources",
		zap.String("root", root),
		zap.Int("files", len(files)),
		zap.Int("callables", ix.Len()),
		zap.Int("classes", ix.Classes()))
	return ix, nil
}

func filterBySize(root string, files []discover.FileEntry, maxSize int64, log *zap.Logger) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > maxSize {
			log.Warn("skipped large source file", zap.String("path", f.Path), zap.Int64("limit", maxSize))
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

type parserPair struct {
	parser *sitter.Parser
	query  *sitter.Query
}

func parseFilesConcurrent(ctx context.Context, root string, files []discover.FileEntry, workers int, log *zap.Logger) ([]model.Declaration, error) {
	type result struct {
		index int
		decls []model.Declaration
	}

	numWorkers := workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parsers := make(map[string]*parserPair)

			for idx := range work {
				if ctx.Err() != nil {
					continue
				}
				f := files[idx]
				pp, ok := parsers[f.Language]
				if !ok {
					l := lang.Languages[f.Language]
					q, err := l.GetDeclQuery()
					if err != nil {
						log.Warn("failed to compile query", zap.String("language", f.Language), zap.Error(err))
						continue
					}
					pp = &parserPair{parser: l.NewParser(), query: q}
					parsers[f.Language] = pp
				}

				source, err := os.ReadFile(filepath.Join(root, f.Path))
				if err != nil {
					log.Warn("failed to read source", zap.String("path", f.Path), zap.Error(err))
					continue
				}
				results <- result{index: idx, decls: parse.Declarations(pp.parser, pp.query, source, f.Path)}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order so duplicate names resolve deterministically.
	indexed := make([][]model.Declaration, len(files))
	for r := range results {
		indexed[r.index] = r.decls
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var decls []model.Declaration
	for _, d := range indexed {
		decls = append(decls, d...)
	}
	return decls, nil
}
