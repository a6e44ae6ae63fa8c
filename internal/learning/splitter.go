package learning

import (
	"image"

	"golang.org/x/image/draw"
)

// cellSize is the normalised edge length for split cells before hashing.
// Normalising keeps a cell's signature independent of the grid image's
// resolution.
const cellSize = 64

// splitGrid cuts a batch registration image into rows x cols cells and
// scales each to the normalised size. Cells are returned row-major; callers
// must not depend on that order for catalog outcomes.
func splitGrid(src image.Image, rows, cols int) []image.Image {
	bounds := src.Bounds()
	cellW := bounds.Dx() / cols
	cellH := bounds.Dy() / rows
	if cellW == 0 || cellH == 0 {
		return nil
	}

	cells := make([]image.Image, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			rect := image.Rect(
				bounds.Min.X+c*cellW,
				bounds.Min.Y+r*cellH,
				bounds.Min.X+(c+1)*cellW,
				bounds.Min.Y+(r+1)*cellH,
			)
			cell := image.NewRGBA(image.Rect(0, 0, cellSize, cellSize))
			draw.ApproxBiLinear.Scale(cell, cell.Bounds(), src, rect, draw.Src, nil)
			cells = append(cells, cell)
		}
	}
	return cells
}
