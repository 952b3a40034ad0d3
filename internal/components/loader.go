// Package components assembles the dashboard layout from named HTML
// fragments and signals once the layout is ready to serve.
package components

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"path"
	"sync"

	"golang.org/x/sync/errgroup"
)

//go:embed fragments/*.html
var embedded embed.FS

// DefaultNames lists the containers in document order.
var DefaultNames = []string{"header", "dashboard", "filter-bar", "chart", "table", "footer"}

const maxConcurrentReads = 4

func EmbeddedFS() fs.FS {
	sub, err := fs.Sub(embedded, "fragments")
	if err != nil {
		panic(err)
	}
	return sub
}

type Fragment struct {
	Name    string
	HTML    string
	Missing bool
}

type Layout struct {
	Fragments []Fragment
}

func (l Layout) Fragment(name string) (Fragment, bool) {
	for _, f := range l.Fragments {
		if f.Name == name {
			return f, true
		}
	}
	return Fragment{}, false
}

type Loader struct {
	fsys   fs.FS
	names  []string
	logger *slog.Logger

	mu     sync.RWMutex
	layout Layout
	ready  chan struct{}
	once   sync.Once
}

func NewLoader(fsys fs.FS, logger *slog.Logger, names ...string) *Loader {
	if len(names) == 0 {
		names = DefaultNames
	}
	return &Loader{
		fsys:   fsys,
		names:  names,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Load reads every fragment and injects them in document order. Reads run
// concurrently; a fragment that cannot be read is logged and left empty.
// Ready is closed after the first completed Load.
func (l *Loader) Load(ctx context.Context) error {
	fragments := make([]Fragment, len(l.names))

	var g errgroup.Group
	g.SetLimit(maxConcurrentReads)

	for i, name := range l.names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			raw, err := fs.ReadFile(l.fsys, path.Clean(name)+".html")
			if err != nil {
				l.logger.Warn("component fragment unavailable",
					"component", name,
					"error", err,
				)
				fragments[i] = Fragment{Name: name, Missing: true}
				return nil
			}

			fragments[i] = Fragment{Name: name, HTML: string(raw)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	l.mu.Lock()
	l.layout = Layout{Fragments: fragments}
	l.mu.Unlock()

	l.once.Do(func() {
		close(l.ready)
	})

	l.logger.Info("components injected", "count", len(fragments))
	return nil
}

func (l *Loader) Ready() <-chan struct{} {
	return l.ready
}

// Wait blocks until the layout is ready or ctx is done.
func (l *Loader) Wait(ctx context.Context) (Layout, error) {
	select {
	case <-l.ready:
		return l.Layout(), nil
	case <-ctx.Done():
		return Layout{}, ctx.Err()
	}
}

func (l *Loader) Layout() Layout {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.layout
}
