package pdfjobs

import "fmt"

// Validate rejects ranges that can never select a page.
// Bounds past the end of a document are checked later, against its page count.
func (s PageSelection) Validate() error {
	if s.Start != nil && *s.Start < 1 {
		return fmt.Errorf("%w: start must be at least 1, got %d", ErrInvalidPageRange, *s.Start)
	}
	if s.End != nil && *s.End < 1 {
		return fmt.Errorf("%w: end must be at least 1, got %d", ErrInvalidPageRange, *s.End)
	}
	if s.Start != nil && s.End != nil && *s.Start > *s.End {
		return fmt.Errorf("%w: start %d is after end %d", ErrInvalidPageRange, *s.Start, *s.End)
	}
	return nil
}

// IsAll reports whether the selection keeps every page.
func (s PageSelection) IsAll() bool {
	return s.Start == nil && s.End == nil
}

// Pages returns the 1-based page numbers selected from a document of
// total pages, clamping End to total. The result may be empty.
func (s PageSelection) Pages(total int) []int {
	start, end := 1, total
	if s.Start != nil {
		start = *s.Start
	}
	if s.End != nil && *s.End < end {
		end = *s.End
	}
	if start > end {
		return nil
	}
	pages := make([]int, 0, end-start+1)
	for n := start; n <= end; n++ {
		pages = append(pages, n)
	}
	return pages
}

// pageRange is an inclusive 1-based span of pages.
type pageRange struct {
	From, Thru int
}

// splitRanges cuts total pages into consecutive spans of interval pages.
// The last span may be shorter.
func splitRanges(total, interval int) []pageRange {
	if total <= 0 || interval <= 0 {
		return nil
	}
	ranges := make([]pageRange, 0, (total+interval-1)/interval)
	for from := 1; from <= total; from += interval {
		ranges = append(ranges, pageRange{From: from, Thru: min(from+interval-1, total)})
	}
	return ranges
}

func (r pageRange) pages() []int {
	pages := make([]int, 0, r.Thru-r.From+1)
	for n := r.From; n <= r.Thru; n++ {
		pages = append(pages, n)
	}
	return pages
}
