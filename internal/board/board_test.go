package board

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDropStacksFromBottom(t *testing.T) {
	var b Board
	for i := 0; i < Rows; i++ {
		row, err := b.Drop(3, First)
		require.NoError(t, err)
		require.Equal(t, Rows-1-i, row)
	}
	_, ok := b.LowestOpenRow(3)
	require.False(t, ok)
}

func TestDropFullColumnLeavesBoardUnchanged(t *testing.T) {
	var b Board
	for i := 0; i < Rows; i++ {
		_, err := b.Drop(0, Cell(1+i%2))
		require.NoError(t, err)
	}
	before := b
	_, err := b.Drop(0, First)
	require.True(t, errors.Is(err, ErrColumnFull))
	require.Equal(t, before, b)
}

func TestDropRejectsOutOfRange(t *testing.T) {
	var b Board
	for _, col := range []int{-1, Cols, 99} {
		_, err := b.Drop(col, First)
		require.ErrorIs(t, err, ErrInvalidColumn)
	}
	require.Equal(t, Board{}, b)
}

func TestDetectWinDirections(t *testing.T) {
	cases := []struct {
		name     string
		lines    []string
		row, col int
		want     bool
	}{
		{
			name: "horizontal",
			lines: []string{
				".......",
				".......",
				".......",
				".......",
				".......",
				"XXXX...",
			},
			row: 5, col: 3, want: true,
		},
		{
			name: "horizontal middle placement",
			lines: []string{
				".......",
				".......",
				".......",
				".......",
				".......",
				"..XXXX.",
			},
			row: 5, col: 4, want: true,
		},
		{
			name: "vertical",
			lines: []string{
				".......",
				".......",
				"...O...",
				"...O...",
				"...O...",
				"...O...",
			},
			row: 2, col: 3, want: true,
		},
		{
			name: "diagonal rising",
			lines: []string{
				".......",
				".......",
				"...X...",
				"..XO...",
				".XOO...",
				"XOOX...",
			},
			row: 2, col: 3, want: true,
		},
		{
			name: "diagonal falling",
			lines: []string{
				".......",
				".......",
				"O......",
				"XO.....",
				"XXO....",
				"XXXO...",
			},
			row: 2, col: 0, want: true,
		},
		{
			name: "three only",
			lines: []string{
				".......",
				".......",
				".......",
				".......",
				".......",
				"XXX.OOO",
			},
			row: 5, col: 2, want: false,
		},
		{
			name: "broken line",
			lines: []string{
				".......",
				".......",
				".......",
				".......",
				".......",
				"XX.XX..",
			},
			row: 5, col: 4, want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Parse(tc.lines...)
			require.NoError(t, err)
			require.Equal(t, tc.want, b.DetectWin(tc.row, tc.col))
		})
	}
}

// lineThrough checks every window of ConnectN containing (row, col).
func lineThrough(b *Board, row, col int) bool {
	mark := b[row][col]
	if mark == Empty {
		return false
	}
	for _, d := range directions {
		for start := -(ConnectN - 1); start <= 0; start++ {
			ok := true
			for k := 0; k < ConnectN; k++ {
				r, c := row+(start+k)*d[0], col+(start+k)*d[1]
				if !inside(r, c) || b[r][c] != mark {
					ok = false
					break
				}
			}
			if ok {
				return true
			}
		}
	}
	return false
}

func TestDetectWinMatchesWindowScan(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for game := 0; game < 300; game++ {
		var b Board
		side := First
		for {
			open := b.OpenColumns()
			if len(open) == 0 {
				break
			}
			col := open[r.Intn(len(open))]
			row, err := b.Drop(col, side)
			require.NoError(t, err)
			want := lineThrough(&b, row, col)
			require.Equal(t, want, b.DetectWin(row, col), "board:\n%s", b)
			if want {
				break
			}
			side = side.Other()
		}
	}
}

func TestIsFull(t *testing.T) {
	b, err := Parse(
		"XOXOXOX",
		"XOXOXOX",
		"OXOXOXO",
		"OXOXOXO",
		"XOXOXOX",
		"XOXOXOX",
	)
	require.NoError(t, err)
	require.True(t, b.IsFull())
	require.Empty(t, b.OpenColumns())

	b[0][6] = Empty
	require.False(t, b.IsFull())
	require.Equal(t, []int{6}, b.OpenColumns())
}

func TestLastCellWinIsStillAWin(t *testing.T) {
	b, err := Parse(
		"XOX.OXO",
		"OXOXOOX",
		"OXOXXOX",
		"XOXOXOO",
		"OOXOOXX",
		"XXXOXXO",
	)
	require.NoError(t, err)
	require.Equal(t, []int{3}, b.OpenColumns())

	row, err := b.Drop(3, Second)
	require.NoError(t, err)
	require.Equal(t, 0, row)
	require.True(t, b.IsFull())
	require.True(t, b.DetectWin(row, 3))
}

func TestParseRejectsFloatingDisc(t *testing.T) {
	_, err := Parse(
		".......",
		".......",
		".......",
		"...X...",
		".......",
		".......",
	)
	require.Error(t, err)
}

func TestRowsRoundTrip(t *testing.T) {
	b, err := Parse(
		".......",
		".......",
		".......",
		".......",
		"...O...",
		"..XXO..",
	)
	require.NoError(t, err)
	back, err := FromRows(b.Rows())
	require.NoError(t, err)
	require.Equal(t, b, back)
	require.Equal(t, 4, b.Count())
}
