// Package grid is a small filter/sort engine for a container of rendered
// collection items. Filtering runs asynchronously and resolves a Future;
// sorting reorders the item nodes in place and returns immediately.
package grid

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bryan-buckman/unitview/internal/page"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// SelectAll matches every target.
const SelectAll = "all"

// Default selectors.
const (
	DefaultContainer = "#mix-container"
	DefaultTarget    = ".mix"
)

var (
	// ErrNoContainer is returned when the container selector matches nothing.
	ErrNoContainer = errors.New("grid container not found")
	// ErrBadSelector is returned for a filter selector that does not compile.
	ErrBadSelector = errors.New("invalid filter selector")
)

// Options configures an Engine.
type Options struct {
	Container string
	Target    string
	Logger    *zap.Logger
}

// Engine filters and sorts the targets of one container.
type Engine struct {
	doc       *page.Document
	container string
	target    string
	log       *zap.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	issued  uint64
	applied uint64
}

// New mounts an engine on the container. It fails when the container is absent.
func New(doc *page.Document, opts Options) (*Engine, error) {
	if opts.Container == "" {
		opts.Container = DefaultContainer
	}
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	found := false
	doc.Update(func(root *goquery.Selection) {
		found = root.Find(opts.Container).Length() > 0
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoContainer, opts.Container)
	}
	return &Engine{
		doc:       doc,
		container: opts.Container,
		target:    opts.Target,
		log:       opts.Logger,
	}, nil
}

// Filter shows the targets matching selector ("all" for every target) and
// hides the rest. When two filters race, the one issued last wins.
func (e *Engine) Filter(selector string) *Future {
	f := newFuture()
	if selector != SelectAll {
		if _, err := cascadia.Compile(selector); err != nil {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				f.resolve(State{Filter: selector}, fmt.Errorf("%w %q: %v", ErrBadSelector, selector, err))
			}()
			return f
		}
	}

	e.mu.Lock()
	e.issued++
	seq := e.issued
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		state := e.apply(seq, selector)
		e.log.Debug("grid filter applied",
			zap.String("selector", selector),
			zap.Int("shown", state.TotalShow),
			zap.Bool("superseded", state.Superseded))
		f.resolve(state, nil)
	}()
	return f
}

func (e *Engine) apply(seq uint64, selector string) State {
	state := State{Filter: selector}
	e.doc.Update(func(root *goquery.Selection) {
		e.mu.Lock()
		stale := seq < e.applied
		if !stale {
			e.applied = seq
		}
		e.mu.Unlock()

		targets := root.Find(e.container).Find(e.target)
		if stale {
			state.Superseded = true
			targets.Each(func(_ int, s *goquery.Selection) {
				if page.Hidden(s) {
					state.TotalHide++
				} else {
					state.TotalShow++
				}
			})
			return
		}
		targets.Each(func(_ int, s *goquery.Selection) {
			if selector == SelectAll || s.Is(selector) {
				page.SetStyle(s, "display", "")
				state.TotalShow++
			} else {
				page.SetStyle(s, "display", "none")
				state.TotalHide++
			}
		})
	})
	return state
}

// Sort orders the targets by spec ("field:order"). Values of the data-<field>
// attribute compare numerically when both parse as numbers. Equal values keep
// their document order.
func (e *Engine) Sort(spec string) error {
	state, err := model.ParseSortSpec(spec)
	if err != nil {
		return err
	}
	attr := state.Field.Attr()
	e.doc.Update(func(root *goquery.Selection) {
		targets := root.Find(e.container).Find(e.target)
		groups := make(map[*html.Node][]*goquery.Selection)
		var parents []*html.Node
		targets.Each(func(_ int, s *goquery.Selection) {
			p := s.Nodes[0].Parent
			if _, ok := groups[p]; !ok {
				parents = append(parents, p)
			}
			groups[p] = append(groups[p], s)
		})
		for _, p := range parents {
			items := groups[p]
			sort.SliceStable(items, func(i, j int) bool {
				a, _ := items[i].Attr(attr)
				b, _ := items[j].Attr(attr)
				c := compareValues(a, b)
				if state.Order == model.OrderDesc {
					return c > 0
				}
				return c < 0
			})
			page.AppendInOrder(goquery.NewDocumentFromNode(p).Selection, items)
		}
	})
	e.log.Debug("grid sorted", zap.String("sort", spec))
	return nil
}

func compareValues(a, b string) int {
	fa, okA := model.ParseFloat(a)
	fb, okB := model.ParseFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Close waits for in-flight filters to finish.
func (e *Engine) Close() {
	e.wg.Wait()
}
