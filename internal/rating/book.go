package rating

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Change is one applied rating update for a single game.
type Change struct {
	GameID      string
	White       string
	Black       string
	Result      string
	WhiteBefore int
	BlackBefore int
	WhiteAfter  int
	BlackAfter  int
	At          time.Time
}

// Store persists rating changes.
type Store interface {
	RecordRatingChange(ctx context.Context, c Change) error
}

// Entry is a model and its current rating.
type Entry struct {
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// Book owns the mutable ratings of every model. Apply serialises updates so a
// model's rating is never read and written by two games at once, and stored
// changes land in the order they were computed.
type Book struct {
	log   *slog.Logger
	store Store
	k     float64

	// apply is held across compute and persist; mu guards the map only.
	apply   sync.Mutex
	mu      sync.Mutex
	ratings map[string]int
}

func NewBook(log *slog.Logger, store Store, k float64) *Book {
	if log == nil {
		log = slog.Default()
	}
	if k <= 0 {
		k = DefaultK
	}
	return &Book{
		log:     log.With(slog.String("component", "ratings")),
		store:   store,
		k:       k,
		ratings: make(map[string]int),
	}
}

// Seed sets a model's rating unless one is already known.
func (b *Book) Seed(name string, r int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ratings[name]; !ok {
		b.ratings[name] = r
	}
}

// Set overwrites a model's rating.
func (b *Book) Set(name string, r int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ratings[name] = r
}

func (b *Book) SetK(k float64) {
	if k <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.k = k
}

func (b *Book) Rating(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookupLocked(name)
}

func (b *Book) lookupLocked(name string) int {
	if r, ok := b.ratings[name]; ok {
		return r
	}
	return DefaultRating
}

// Apply updates both ratings for a finished game and persists the change.
// Undecided results are ignored and return a zero Change.
func (b *Book) Apply(ctx context.Context, gameID, white, black, result string) (Change, error) {
	b.apply.Lock()
	defer b.apply.Unlock()

	b.mu.Lock()
	wb := b.lookupLocked(white)
	bb := b.lookupLocked(black)
	wa, ba, err := Update(wb, bb, result, b.k)
	if err != nil {
		b.mu.Unlock()
		return Change{}, err
	}
	if _, _, decided, _ := Score(result); !decided {
		b.mu.Unlock()
		return Change{}, nil
	}
	if white == black {
		wa, ba = wb, bb
	}
	b.ratings[white] = wa
	b.ratings[black] = ba
	b.mu.Unlock()

	c := Change{
		GameID:      gameID,
		White:       white,
		Black:       black,
		Result:      result,
		WhiteBefore: wb,
		BlackBefore: bb,
		WhiteAfter:  wa,
		BlackAfter:  ba,
		At:          time.Now().UTC(),
	}
	b.log.Info("ratings_updated",
		slog.String("game", gameID),
		slog.String("white", white), slog.Int("white_rating", wa),
		slog.String("black", black), slog.Int("black_rating", ba))
	if b.store != nil {
		if err := b.store.RecordRatingChange(ctx, c); err != nil {
			return c, errors.Wrap(err, "persist rating change")
		}
	}
	return c, nil
}

// Snapshot returns all known ratings, highest first.
func (b *Book) Snapshot() []Entry {
	b.mu.Lock()
	out := make([]Entry, 0, len(b.ratings))
	for name, r := range b.ratings {
		out = append(out, Entry{Name: name, Rating: r})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating == out[j].Rating {
			return out[i].Name < out[j].Name
		}
		return out[i].Rating > out[j].Rating
	})
	return out
}
