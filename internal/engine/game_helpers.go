package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/notnil/chess"
)

func outcomeToResult(g *chess.Game) (result string, termination Termination) {
	switch g.Outcome() {
	case chess.WhiteWon:
		result = "1-0"
	case chess.BlackWon:
		result = "0-1"
	case chess.Draw:
		result = "1/2-1/2"
	default:
		return "*", ""
	}

	switch g.Method() {
	case chess.Checkmate:
		termination = Checkmate
	case chess.Stalemate:
		termination = Stalemate
	default:
		termination = Draw
	}
	return result, termination
}

// claimDraw ends the game when a repetition or fifty-move draw is available;
// the rules oracle only applies those automatically at five repetitions or
// seventy-five moves.
func claimDraw(g *chess.Game) bool {
	for _, m := range g.EligibleDraws() {
		if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
			return g.Draw(m) == nil
		}
	}
	return false
}

func colorOf(c chess.Color) Color {
	if c == chess.Black {
		return Black
	}
	return White
}

// moveNumber is the full-move number of a 1-based ply index.
func moveNumber(ply int) int {
	return (ply + 1) / 2
}

func pieceName(t chess.PieceType) string {
	switch t {
	case chess.King:
		return "king"
	case chess.Queen:
		return "queen"
	case chess.Rook:
		return "rook"
	case chess.Bishop:
		return "bishop"
	case chess.Knight:
		return "knight"
	case chess.Pawn:
		return "pawn"
	default:
		return ""
	}
}

// capturedBy names the piece mv takes on pos, if any.
func capturedBy(pos *chess.Position, mv *chess.Move) string {
	if mv.HasTag(chess.EnPassant) {
		return "pawn"
	}
	if !mv.HasTag(chess.Capture) {
		return ""
	}
	return pieceName(pos.Board().Piece(mv.S2()).Type())
}

func boardFromPosition(pos *chess.Position) [][]SquareView {
	board := make([][]SquareView, 0, 8)
	b := pos.Board()

	for r := chess.Rank8; r >= chess.Rank1; r-- {
		row := make([]SquareView, 0, 8)
		for f := chess.FileA; f <= chess.FileH; f++ {
			sq := chess.NewSquare(f, r)

			// a1 is dark.
			class := "sq dark"
			if (int(f)+int(r))%2 == 1 {
				class = "sq light"
			}
			row = append(row, SquareView{Glyph: pieceGlyph(b.Piece(sq)), Class: class})
		}
		board = append(board, row)
	}
	return board
}

var glyphs = map[chess.Piece]string{
	chess.WhiteKing: "♔", chess.WhiteQueen: "♕", chess.WhiteRook: "♖",
	chess.WhiteBishop: "♗", chess.WhiteKnight: "♘", chess.WhitePawn: "♙",
	chess.BlackKing: "♚", chess.BlackQueen: "♛", chess.BlackRook: "♜",
	chess.BlackBishop: "♝", chess.BlackKnight: "♞", chess.BlackPawn: "♟",
}

func pieceGlyph(p chess.Piece) string {
	return glyphs[p]
}

// FormatPGN renders rec as PGN with the arena's fixed header order.
func FormatPGN(rec GameRecord) string {
	round := "-"
	if rec.Round > 0 {
		round = strconv.Itoa(rec.Round)
	}
	date := rec.StartedAt
	if date.IsZero() {
		date = time.Now()
	}
	termination := string(rec.Termination)
	if termination == "" {
		termination = "unterminated"
	}

	var sb strings.Builder
	header := func(k, v string) {
		fmt.Fprintf(&sb, "[%s %q]\n", k, v)
	}
	header("Event", "LLM Chess Arena")
	header("Site", "LLM Chess Arena")
	header("Date", date.UTC().Format("2006.01.02"))
	header("Round", round)
	header("White", rec.White)
	header("Black", rec.Black)
	header("Result", rec.Result)
	header("Termination", termination)
	if rec.Opening != "" {
		header("Opening", rec.Opening)
	}
	sb.WriteString("\n")

	col := 0
	write := func(tok string) {
		if col > 0 && col+len(tok)+1 > 80 {
			sb.WriteString("\n")
			col = 0
		} else if col > 0 {
			sb.WriteString(" ")
			col++
		}
		sb.WriteString(tok)
		col += len(tok)
	}
	for i, m := range rec.Moves {
		if i%2 == 0 {
			write(strconv.Itoa(i/2+1) + ".")
		}
		write(m.SAN)
	}
	write(rec.Result)
	sb.WriteString("\n")
	return sb.String()
}
