// Package paging windows a materialized list into fixed-size pages and keeps
// the caller's current page inside the available range across mutations.
package paging

import (
	"errors"
	"fmt"
)

// DefaultPageSize is used when a pager is created with a size of zero or less.
const DefaultPageSize = 10

// ErrIndexOutOfRange is returned for item indexes outside the list.
var ErrIndexOutOfRange = errors.New("index out of range")

// Pager is a paged view over a slice. Pages are numbered from 1.
// A Pager is not safe for concurrent use.
type Pager[T any] struct {
	items   []T
	size    int
	current int
}

// New returns a pager over a copy of items positioned on page 1.
func New[T any](items []T, size int) *Pager[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	p := &Pager[T]{items: append([]T(nil), items...), size: size, current: 1}
	p.clamp()
	return p
}

// Len returns the number of items.
func (p *Pager[T]) Len() int { return len(p.items) }

// Size returns the page size.
func (p *Pager[T]) Size() int { return p.size }

// TotalPages returns ceil(Len/Size), or 0 for an empty list.
func (p *Pager[T]) TotalPages() int {
	return (len(p.items) + p.size - 1) / p.size
}

// Current returns the current page number. It is always in [1, TotalPages],
// or 1 when the list is empty.
func (p *Pager[T]) Current() int { return p.current }

// SetCurrent moves to page n, clamped into the valid range, and returns the
// resulting page number.
func (p *Pager[T]) SetCurrent(n int) int {
	p.current = n
	p.clamp()
	return p.current
}

// Next advances one page. It reports whether the page changed.
func (p *Pager[T]) Next() bool {
	before := p.current
	return p.SetCurrent(before+1) != before
}

// Prev goes back one page. It reports whether the page changed.
func (p *Pager[T]) Prev() bool {
	before := p.current
	return p.SetCurrent(before-1) != before
}

// Page returns a copy of the items on page n, or nil if n is out of range.
func (p *Pager[T]) Page(n int) []T {
	if n < 1 || n > p.TotalPages() {
		return nil
	}
	start := (n - 1) * p.size
	end := min(start+p.size, len(p.items))
	return append([]T(nil), p.items[start:end]...)
}

// CurrentPage returns the items on the current page.
func (p *Pager[T]) CurrentPage() []T {
	return p.Page(p.current)
}

// Items returns a copy of every item.
func (p *Pager[T]) Items() []T {
	return append([]T(nil), p.items...)
}

// Append adds v at the end of the list.
func (p *Pager[T]) Append(v T) {
	p.items = append(p.items, v)
	p.clamp()
}

// Insert places v at index i, shifting later items. i may equal Len.
func (p *Pager[T]) Insert(i int, v T) error {
	if i < 0 || i > len(p.items) {
		return fmt.Errorf("insert at %d of %d: %w", i, len(p.items), ErrIndexOutOfRange)
	}
	var zero T
	p.items = append(p.items, zero)
	copy(p.items[i+1:], p.items[i:])
	p.items[i] = v
	p.clamp()
	return nil
}

// Delete removes the item at index i.
func (p *Pager[T]) Delete(i int) error {
	if i < 0 || i >= len(p.items) {
		return fmt.Errorf("delete at %d of %d: %w", i, len(p.items), ErrIndexOutOfRange)
	}
	p.items = append(p.items[:i], p.items[i+1:]...)
	p.clamp()
	return nil
}

// Replace swaps in a new list, keeping the current page where possible.
func (p *Pager[T]) Replace(items []T) {
	p.items = append([]T(nil), items...)
	p.clamp()
}

func (p *Pager[T]) clamp() {
	total := p.TotalPages()
	switch {
	case total == 0:
		p.current = 1
	case p.current < 1:
		p.current = 1
	case p.current > total:
		p.current = total
	}
}

// Window describes one page of a list for API responses.
type Window[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// Slice returns page n of items (clamped) as a Window.
func Slice[T any](items []T, page, size int) Window[T] {
	p := New(items, size)
	p.SetCurrent(page)
	w := Window[T]{
		Items:      p.CurrentPage(),
		Page:       p.Current(),
		PageSize:   p.Size(),
		TotalPages: p.TotalPages(),
		TotalItems: p.Len(),
	}
	if w.Items == nil {
		w.Items = []T{}
	}
	return w
}

// Clamp moves page into [1, TotalPages] for a list of total items split into
// pages of size, and returns it with the offset of its first item. Callers
// that page at the source (SQL LIMIT/OFFSET) use it once the total is known.
func Clamp(total, page, size int) (clamped, offset int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (total + size - 1) / size
	switch {
	case page < 1 || pages == 0:
		page = 1
	case page > pages:
		page = pages
	}
	return page, (page - 1) * size
}
