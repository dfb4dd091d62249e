// Package layout splits an ordered feed into masonry columns.
package layout

// Breakpoints in CSS pixels.
const (
	breakpointSmall  = 640
	breakpointMedium = 768
	breakpointLarge  = 1024
)

// Columns returns how many columns a viewport of the given width shows.
func Columns(width int) int {
	switch {
	case width < breakpointSmall:
		return 1
	case width < breakpointMedium:
		return 2
	case width < breakpointLarge:
		return 3
	default:
		return 4
	}
}

// Distribute deals items round-robin into columns: item i goes to column
// i mod columns and keeps its relative order there. The result always has
// exactly max(columns, 1) non-nil slices.
func Distribute[T any](items []T, columns int) [][]T {
	if columns < 1 {
		columns = 1
	}
	out := make([][]T, columns)
	per := (len(items) + columns - 1) / columns
	for i := range out {
		out[i] = make([]T, 0, per)
	}
	for i, item := range items {
		out[i%columns] = append(out[i%columns], item)
	}
	return out
}
