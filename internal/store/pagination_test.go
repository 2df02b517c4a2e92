package store

import "testing"

func TestNewPage(t *testing.T) {
	items := []int{1, 2, 3}

	p := NewPage(items, 10, 2, 3)
	if p.TotalPages != 4 {
		t.Fatalf("expected 4 pages, got %d", p.TotalPages)
	}
	if !p.HasNext || !p.HasPrev {
		t.Fatalf("page 2 of 4 should have both neighbours: %+v", p)
	}

	first := NewPage(items, 10, 1, 3)
	if first.HasPrev {
		t.Fatalf("first page should not have prev")
	}

	last := NewPage([]int{10}, 10, 4, 3)
	if last.HasNext {
		t.Fatalf("last page should not have next")
	}

	empty := NewPage([]int{}, 0, 1, 50)
	if empty.TotalPages != 0 || empty.HasNext || empty.HasPrev {
		t.Fatalf("empty result should have no pages: %+v", empty)
	}
}

func TestNewPageClampsInput(t *testing.T) {
	p := NewPage([]int{}, 0, 0, 0)
	if p.Page < 1 || p.PageSize < 1 {
		t.Fatalf("page and page_size must be clamped to 1: %+v", p)
	}
}
