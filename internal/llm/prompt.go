package llm

import (
	"fmt"
	"strings"

	"llmarena/internal/engine"
)

const systemPrompt = "You are a chess grandmaster. Answer with your move in standard algebraic notation using the requested format."

// BuildPrompt renders the move request sent to every text model.
func BuildPrompt(req engine.ProposalRequest) string {
	check := ""
	if req.InCheck {
		check = " (You are in check!)"
	}
	history := strings.Join(req.History, " ")
	if history == "" {
		history = "(none)"
	}
	number := req.MoveNumber
	if number <= 0 {
		number = len(req.History)/2 + 1
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a Chess Grandmaster playing with the %s pieces%s.\n", req.Color, check)
	sb.WriteString("We are currently playing chess.\n\n")
	sb.WriteString("I will give you the history of the game so far and the current board position.\n")
	sb.WriteString("Analyze the position and find the best move.\n\n")
	fmt.Fprintf(&sb, "Current position (FEN): %s\n", req.FEN)
	fmt.Fprintf(&sb, "Move number: %d\n", number)
	fmt.Fprintf(&sb, "Game history: %s\n\n", history)
	fmt.Fprintf(&sb, "Your legal moves: %s\n\n", strings.Join(req.Legal, ", "))
	sb.WriteString("Consider king safety, development, control of the center, tactics and pawn structure.\n\n")
	sb.WriteString("# OUTPUT\n")
	sb.WriteString("Do not use any special characters.\n")
	sb.WriteString("Give your response in the following order:\n\n")
	sb.WriteString("1. Your move, using the following format: My move: \"Move\" (in SAN notation, in english).\n")
	sb.WriteString("2. A short explanation of why you chose the move, in no more than 3 sentences.\n")
	return sb.String()
}
