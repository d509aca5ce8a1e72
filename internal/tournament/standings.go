package tournament

import (
	"sort"

	"llmarena/internal/rating"
)

type Standing struct {
	Participant string  `json:"participant"`
	Points      float64 `json:"points"`
	Games       int     `json:"games"`
	Wins        int     `json:"wins"`
	Draws       int     `json:"draws"`
	Losses      int     `json:"losses"`
	Rating      int     `json:"rating"`
	Buchholz    float64 `json:"buchholz"`
	// Seed is the participant's position in the entry list, 1-based.
	Seed int `json:"seed"`
}

// Standings is the table of one tournament. Ratings here are tournament-local
// and start from each participant's rating at creation.
type Standings struct {
	k    float64
	rows map[string]*Standing
}

func NewStandings(participants []string, ratings func(string) int, k float64) *Standings {
	if k <= 0 {
		k = rating.DefaultK
	}
	s := &Standings{k: k, rows: make(map[string]*Standing, len(participants))}
	for i, p := range participants {
		r := rating.DefaultRating
		if ratings != nil {
			r = ratings(p)
		}
		s.rows[p] = &Standing{Participant: p, Rating: r, Seed: i + 1}
	}
	return s
}

// Apply records one decided game. Undecided results and unknown participants
// are ignored.
func (s *Standings) Apply(white, black, result string) bool {
	w, okW := s.rows[white]
	b, okB := s.rows[black]
	if !okW || !okB {
		return false
	}
	switch result {
	case "1-0":
		w.Wins++
		w.Points++
		b.Losses++
	case "0-1":
		b.Wins++
		b.Points++
		w.Losses++
	case "1/2-1/2":
		w.Draws++
		b.Draws++
		w.Points += 0.5
		b.Points += 0.5
	default:
		return false
	}
	w.Games++
	b.Games++
	if nw, nb, err := rating.Update(w.Rating, b.Rating, result, s.k); err == nil {
		w.Rating, b.Rating = nw, nb
	}
	return true
}

func (s *Standings) Get(name string) (Standing, bool) {
	r, ok := s.rows[name]
	if !ok {
		return Standing{}, false
	}
	return *r, true
}

// RecomputeBuchholz sets each participant's Buchholz score to the sum of the
// current points of every distinct opponent met in a decided game.
func (s *Standings) RecomputeBuchholz(history []Pairing) {
	met := make(map[string]map[string]bool, len(s.rows))
	for _, p := range history {
		if !p.decided() {
			continue
		}
		for _, pair := range [][2]string{{p.White, p.Black}, {p.Black, p.White}} {
			if met[pair[0]] == nil {
				met[pair[0]] = make(map[string]bool)
			}
			met[pair[0]][pair[1]] = true
		}
	}
	for name, row := range s.rows {
		var sum float64
		for opp := range met[name] {
			if o, ok := s.rows[opp]; ok {
				sum += o.Points
			}
		}
		row.Buchholz = sum
	}
}

// Sorted returns the table by points, Buchholz and rating, all descending.
// Seed breaks any remaining tie.
func (s *Standings) Sorted() []Standing {
	out := make([]Standing, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Buchholz != b.Buchholz {
			return a.Buchholz > b.Buchholz
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.Seed < b.Seed
	})
	return out
}

// ByPointsAndRating orders rows the way Swiss pairing needs them.
func ByPointsAndRating(rows []Standing) []Standing {
	out := append([]Standing(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Seed < out[j].Seed
	})
	return out
}
