package web

import (
	"math"
	"net/http"
	"sort"

	"llmarena/internal/db"
)

// RankingRow is one model's Bradley-Terry strength fitted over all decided
// games between different models.
type RankingRow struct {
	Rank        int     `json:"rank"`
	Name        string  `json:"name"`
	Strength    float64 `json:"strength"`
	ScorePct    float64 `json:"scorePct"`
	Games       int     `json:"games"`
	StrengthPct float64 `json:"strengthPct"`
	Rating      int     `json:"rating"`
}

type MatchupBreakdown struct {
	Opponent string  `json:"opponent"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Draws    int     `json:"draws"`
	Total    int     `json:"total"`
	WinPct   float64 `json:"winPct"`
	LossPct  float64 `json:"lossPct"`
	DrawPct  float64 `json:"drawPct"`
}

type RankingView struct {
	RankingRow
	Matchups []MatchupBreakdown `json:"matchups"`
}

func (h *Handler) handleRankings(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Store.ResultsByPair(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	rankings := computeBradleyTerry(rows)
	matchupsByModel := buildMatchupsByModel(rows)
	view := make([]RankingView, 0, len(rankings))
	for _, row := range rankings {
		if h.deps.Ratings != nil {
			row.Rating = h.deps.Ratings.Rating(row.Name)
		}
		matchups := matchupsByModel[row.Name]
		sort.Slice(matchups, func(i, j int) bool {
			if matchups[i].Total == matchups[j].Total {
				return matchups[i].Opponent < matchups[j].Opponent
			}
			return matchups[i].Total > matchups[j].Total
		})
		view = append(view, RankingView{RankingRow: row, Matchups: matchups})
	}
	writeJSON(w, http.StatusOK, view)
}

func buildMatchupsByModel(rows []db.PairResult) map[string][]MatchupBreakdown {
	matchups := make(map[string][]MatchupBreakdown)
	for _, row := range rows {
		total := row.WinsA + row.WinsB + row.Draws
		if total == 0 || row.A == row.B {
			continue
		}
		matchups[row.A] = append(matchups[row.A], breakdown(row.B, row.WinsA, row.WinsB, row.Draws))
		matchups[row.B] = append(matchups[row.B], breakdown(row.A, row.WinsB, row.WinsA, row.Draws))
	}
	return matchups
}

func breakdown(opponent string, wins, losses, draws int) MatchupBreakdown {
	total := wins + losses + draws
	return MatchupBreakdown{
		Opponent: opponent,
		Wins:     wins,
		Losses:   losses,
		Draws:    draws,
		Total:    total,
		WinPct:   float64(wins) * 100 / float64(total),
		LossPct:  float64(losses) * 100 / float64(total),
		DrawPct:  float64(draws) * 100 / float64(total),
	}
}

const (
	btMaxIterations = 200
	btTolerance     = 1e-6
)

// computeBradleyTerry fits strengths with the minorisation-maximisation
// iteration, counting a draw as half a win for each side. Models without a
// single half point collapse to zero strength.
func computeBradleyTerry(rows []db.PairResult) []RankingRow {
	var names []string
	index := make(map[string]int)
	slot := func(name string) int {
		i, ok := index[name]
		if !ok {
			i = len(names)
			index[name] = i
			names = append(names, name)
		}
		return i
	}

	type pairing struct {
		a, b   int
		n      float64
		scoreA float64
	}
	var pairs []pairing
	for _, row := range rows {
		if row.A == row.B {
			continue
		}
		n := float64(row.WinsA + row.WinsB + row.Draws)
		if n == 0 {
			continue
		}
		pairs = append(pairs, pairing{
			a:      slot(row.A),
			b:      slot(row.B),
			n:      n,
			scoreA: float64(row.WinsA) + float64(row.Draws)/2,
		})
	}
	if len(names) == 0 {
		return nil
	}

	score := make([]float64, len(names))
	played := make([]float64, len(names))
	for _, p := range pairs {
		score[p.a] += p.scoreA
		score[p.b] += p.n - p.scoreA
		played[p.a] += p.n
		played[p.b] += p.n
	}

	strength := make([]float64, len(names))
	for i := range strength {
		strength[i] = 1
	}
	denom := make([]float64, len(names))
	for iter := 0; iter < btMaxIterations; iter++ {
		for i := range denom {
			denom[i] = 0
		}
		for _, p := range pairs {
			sum := strength[p.a] + strength[p.b]
			if sum <= 0 {
				sum = 1
			}
			denom[p.a] += p.n / sum
			denom[p.b] += p.n / sum
		}
		delta := 0.0
		for i := range strength {
			next := 0.0
			if score[i] > 0 && denom[i] > 0 {
				next = score[i] / denom[i]
			}
			delta = math.Max(delta, math.Abs(next-strength[i]))
			strength[i] = next
		}
		if delta < btTolerance {
			break
		}
	}

	top := 0.0
	for _, s := range strength {
		top = math.Max(top, s)
	}
	if top == 0 {
		top = 1
	}

	out := make([]RankingRow, len(names))
	for i, name := range names {
		out[i] = RankingRow{
			Name:        name,
			Strength:    strength[i],
			ScorePct:    score[i] * 100 / played[i],
			Games:       int(played[i]),
			StrengthPct: strength[i] * 100 / top,
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
