package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"cashbook/internal/export"
	"cashbook/internal/sheets"
)

var _ sheets.TablePublisher = (*Publisher)(nil)

// Publisher keeps published tables in memory, one per tab.
type Publisher struct {
	mu    sync.Mutex
	tabs  map[string]export.Table
	count int
	err   error
}

func New() *Publisher {
	return &Publisher{tabs: make(map[string]export.Table)}
}

// FailWith makes every following Publish return err. A nil err clears it.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *Publisher) Publish(ctx context.Context, tab string, t export.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tab = strings.TrimSpace(tab)
	if tab == "" {
		return errors.New("tab name is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = append([]string(nil), r...)
	}
	p.tabs[tab] = export.Table{
		Title:  t.Title,
		Header: append([]string(nil), t.Header...),
		Rows:   rows,
	}
	p.count++
	return nil
}

// Table returns the last table published to tab.
func (p *Publisher) Table(tab string) (export.Table, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tabs[tab]
	return t, ok
}

// Count is the number of successful publishes.
func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
