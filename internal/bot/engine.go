package bot

import (
	"errors"
	"math"

	"github.com/park285/connect4-server/internal/board"
)

const (
	DefaultDepth = 5
	MaxDepth     = 9

	// WinScore is the terminal value of a won position. Remaining depth is
	// added on top so earlier wins outrank later ones.
	WinScore = 1_000_000

	centerWeight = 3
	fourWeight   = 100
	threeWeight  = 5
	twoWeight    = 2
	// opponent three-with-gap; sits between twoWeight and threeWeight
	blockWeight = 4
)

var ErrNoMoves = errors.New("no legal column")

// searchOrder lists columns center-first. Root candidates are visited in
// this order and only a strictly better score replaces the incumbent, so
// ties go to the most central column and then to the left.
var searchOrder = [board.Cols]int{3, 2, 4, 1, 5, 0, 6}

// Engine picks columns with depth-limited minimax and alpha-beta pruning.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	depth int
}

func NewEngine(depth int) *Engine {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	return &Engine{depth: depth}
}

func (e *Engine) Depth() int { return e.depth }

// ChooseColumn returns the best column for side on b. b is passed by value
// and never modified.
func (e *Engine) ChooseColumn(b board.Board, side board.Cell) (int, error) {
	col, _, err := e.search(b, side)
	return col, err
}

// ScoredColumn is ChooseColumn plus the minimax value of the pick.
func (e *Engine) ScoredColumn(b board.Board, side board.Cell) (int, int, error) {
	return e.search(b, side)
}

func (e *Engine) search(b board.Board, side board.Cell) (int, int, error) {
	if side != board.First && side != board.Second {
		return -1, 0, errors.New("invalid side")
	}
	best, bestScore := -1, math.MinInt
	alpha, beta := math.MinInt, math.MaxInt
	for _, col := range searchOrder {
		child := b
		row, err := child.Drop(col, side)
		if err != nil {
			continue
		}
		score := minimax(&child, row, col, e.depth-1, alpha, beta, false, side)
		if best < 0 || score > bestScore {
			best, bestScore = col, score
		}
		if bestScore > alpha {
			alpha = bestScore
		}
	}
	if best < 0 {
		return -1, 0, ErrNoMoves
	}
	return best, bestScore, nil
}

// minimax scores the position after the disc at (row, col) was placed.
// maximizing is true when it is me to move next.
func minimax(b *board.Board, row, col, depth, alpha, beta int, maximizing bool, me board.Cell) int {
	if b.DetectWin(row, col) {
		if b[row][col] == me {
			return WinScore + depth
		}
		return -(WinScore + depth)
	}
	if b.IsFull() {
		return 0
	}
	if depth <= 0 {
		return Evaluate(b, me)
	}

	mover := me
	if !maximizing {
		mover = me.Other()
	}

	if maximizing {
		value := math.MinInt
		for _, c := range searchOrder {
			child := *b
			r, err := child.Drop(c, mover)
			if err != nil {
				continue
			}
			value = max(value, minimax(&child, r, c, depth-1, alpha, beta, false, me))
			alpha = max(alpha, value)
			if beta <= alpha {
				break
			}
		}
		return value
	}

	value := math.MaxInt
	for _, c := range searchOrder {
		child := *b
		r, err := child.Drop(c, mover)
		if err != nil {
			continue
		}
		value = min(value, minimax(&child, r, c, depth-1, alpha, beta, true, me))
		beta = min(beta, value)
		if beta <= alpha {
			break
		}
	}
	return value
}
