// Package events fans arena events out to live viewers and message brokers.
package events

import "time"

const (
	TopicGameStarted         = "game-started"
	TopicGameUpdate          = "game-update"
	TopicGameCompleted       = "game-completed"
	TopicBattleUpdate        = "battle-update"
	TopicBattleCompleted     = "battle-completed"
	TopicTournamentUpdate    = "tournament-update"
	TopicTournamentRound     = "tournament-round"
	TopicTournamentCompleted = "tournament-completed"
)

// Event is one published notification. ID is the game, battle or tournament
// the event belongs to.
type Event struct {
	Topic   string    `json:"topic"`
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

func New(topic, id string, payload any) Event {
	return Event{Topic: topic, ID: id, Time: time.Now().UTC(), Payload: payload}
}

// Sink receives every event published on a Broadcaster.
type Sink interface {
	Deliver(Event)
}

// Discard drops events. Useful where a publisher is required but nobody listens.
type Discard struct{}

func (Discard) Publish(Event) {}
