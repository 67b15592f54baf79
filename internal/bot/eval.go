package bot

import "github.com/park285/connect4-server/internal/board"

// Evaluate scores a non-terminal position from me's point of view.
func Evaluate(b *board.Board, me board.Cell) int {
	score := 0
	center := board.Cols / 2
	for row := 0; row < board.Rows; row++ {
		if b[row][center] == me {
			score += centerWeight
		}
	}

	var window [board.ConnectN]board.Cell
	// horizontal
	for row := 0; row < board.Rows; row++ {
		for col := 0; col <= board.Cols-board.ConnectN; col++ {
			for k := range window {
				window[k] = b[row][col+k]
			}
			score += scoreWindow(window, me)
		}
	}
	// vertical
	for col := 0; col < board.Cols; col++ {
		for row := 0; row <= board.Rows-board.ConnectN; row++ {
			for k := range window {
				window[k] = b[row+k][col]
			}
			score += scoreWindow(window, me)
		}
	}
	// diagonals
	for row := 0; row <= board.Rows-board.ConnectN; row++ {
		for col := 0; col <= board.Cols-board.ConnectN; col++ {
			for k := range window {
				window[k] = b[row+k][col+k]
			}
			score += scoreWindow(window, me)
			for k := range window {
				window[k] = b[row+board.ConnectN-1-k][col+k]
			}
			score += scoreWindow(window, me)
		}
	}
	return score
}

func scoreWindow(w [board.ConnectN]board.Cell, me board.Cell) int {
	mine, theirs, empty := 0, 0, 0
	opp := me.Other()
	for _, c := range w {
		switch c {
		case me:
			mine++
		case opp:
			theirs++
		default:
			empty++
		}
	}
	switch {
	case mine == 4:
		return fourWeight
	case mine == 3 && empty == 1:
		return threeWeight
	case mine == 2 && empty == 2:
		return twoWeight
	case theirs == 3 && empty == 1:
		return -blockWeight
	}
	return 0
}
