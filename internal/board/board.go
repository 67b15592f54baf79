package board

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Rows     = 6
	Cols     = 7
	ConnectN = 4
)

var (
	ErrInvalidColumn = errors.New("column out of range")
	ErrColumnFull    = errors.New("column is full")
)

// Cell is the content of one board square. First and Second double as the
// two sides of a match.
type Cell uint8

const (
	Empty Cell = iota
	First
	Second
)

// Other returns the opposing side. Empty maps to Empty.
func (c Cell) Other() Cell {
	switch c {
	case First:
		return Second
	case Second:
		return First
	default:
		return Empty
	}
}

func (c Cell) String() string {
	switch c {
	case First:
		return "first"
	case Second:
		return "second"
	default:
		return "empty"
	}
}

func (c Cell) glyph() byte {
	switch c {
	case First:
		return 'X'
	case Second:
		return 'O'
	default:
		return '.'
	}
}

// Board is a 6x7 grid, row 0 at the top. It is a value type: copying a
// Board copies the grid, which the bot relies on to explore hypotheticals.
type Board [Rows][Cols]Cell

// LowestOpenRow returns the row a disc dropped into col would land in.
func (b *Board) LowestOpenRow(col int) (int, bool) {
	if col < 0 || col >= Cols {
		return -1, false
	}
	for row := Rows - 1; row >= 0; row-- {
		if b[row][col] == Empty {
			return row, true
		}
	}
	return -1, false
}

// Drop places side into col in place and returns the resolved row.
// The board is untouched on error.
func (b *Board) Drop(col int, side Cell) (int, error) {
	if col < 0 || col >= Cols {
		return -1, fmt.Errorf("%w: %d", ErrInvalidColumn, col)
	}
	if side != First && side != Second {
		return -1, fmt.Errorf("invalid side %d", side)
	}
	row, ok := b.LowestOpenRow(col)
	if !ok {
		return -1, ErrColumnFull
	}
	b[row][col] = side
	return row, nil
}

var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// DetectWin reports whether the disc at (row, col) completes a line of
// ConnectN. Only the four lines through that cell are inspected.
func (b *Board) DetectWin(row, col int) bool {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		return false
	}
	mark := b[row][col]
	if mark == Empty {
		return false
	}
	for _, d := range directions {
		count := 1
		for r, c := row+d[0], col+d[1]; inside(r, c) && b[r][c] == mark; r, c = r+d[0], c+d[1] {
			count++
		}
		for r, c := row-d[0], col-d[1]; inside(r, c) && b[r][c] == mark; r, c = r-d[0], c-d[1] {
			count++
		}
		if count >= ConnectN {
			return true
		}
	}
	return false
}

// IsFull reports whether no column has room.
func (b *Board) IsFull() bool {
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			return false
		}
	}
	return true
}

// OpenColumns lists the columns with room, left to right.
func (b *Board) OpenColumns() []int {
	out := make([]int, 0, Cols)
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			out = append(out, col)
		}
	}
	return out
}

// Count returns how many discs are on the board.
func (b *Board) Count() int {
	n := 0
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			if b[row][col] != Empty {
				n++
			}
		}
	}
	return n
}

// Rows returns the grid as ints (0 empty, 1 first, 2 second).
func (b *Board) Rows() [][]int {
	out := make([][]int, Rows)
	for row := 0; row < Rows; row++ {
		out[row] = make([]int, Cols)
		for col := 0; col < Cols; col++ {
			out[row][col] = int(b[row][col])
		}
	}
	return out
}

func (b Board) String() string {
	var sb strings.Builder
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			sb.WriteByte(b[row][col].glyph())
		}
		if row < Rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Parse builds a board from Rows strings of Cols characters, top row first.
// '.' or '0' is empty, 'X' or '1' is First, 'O' or '2' is Second.
func Parse(lines ...string) (Board, error) {
	var b Board
	if len(lines) != Rows {
		return b, fmt.Errorf("expected %d rows, got %d", Rows, len(lines))
	}
	for row, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) != Cols {
			return b, fmt.Errorf("row %d: expected %d cells, got %d", row, Cols, len(line))
		}
		for col := 0; col < Cols; col++ {
			switch line[col] {
			case '.', '0':
				b[row][col] = Empty
			case 'X', 'x', '1':
				b[row][col] = First
			case 'O', 'o', '2':
				b[row][col] = Second
			default:
				return b, fmt.Errorf("row %d col %d: unexpected %q", row, col, line[col])
			}
		}
	}
	// no floating discs
	for col := 0; col < Cols; col++ {
		for row := 0; row < Rows-1; row++ {
			if b[row][col] != Empty && b[row+1][col] == Empty {
				return b, fmt.Errorf("col %d: gap below row %d", col, row)
			}
		}
	}
	return b, nil
}

// FromRows is the inverse of Board.Rows.
func FromRows(grid [][]int) (Board, error) {
	var b Board
	if len(grid) != Rows {
		return b, fmt.Errorf("expected %d rows, got %d", Rows, len(grid))
	}
	lines := make([]string, Rows)
	for row := range grid {
		if len(grid[row]) != Cols {
			return b, fmt.Errorf("row %d: expected %d cells, got %d", row, Cols, len(grid[row]))
		}
		var sb strings.Builder
		for _, v := range grid[row] {
			if v < 0 || v > 2 {
				return b, fmt.Errorf("row %d: unexpected value %d", row, v)
			}
			sb.WriteByte(byte('0' + v))
		}
		lines[row] = sb.String()
	}
	return Parse(lines...)
}

func inside(r, c int) bool { return r >= 0 && r < Rows && c >= 0 && c < Cols }
