package archive

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"llmarena/internal/engine"
)

type fakeBucket struct {
	keys   []string
	bodies []string
	err    error
}

func (f *fakeBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKey(t *testing.T) {
	rec := engine.GameRecord{
		ID:      "game_42",
		White:   "GPT-4o",
		Black:   "Claude-3.5-Sonnet",
		EndedAt: time.Date(2024, 3, 7, 23, 30, 0, 0, time.UTC),
	}
	want := "games/2024/03/07/gpt-4o-vs-claude-3-5-sonnet-game_42.pgn"
	if got := Key(rec); got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
}

func TestRecordGameUploadsPGN(t *testing.T) {
	bucket := &fakeBucket{}
	a := NewS3Archiver(discard(), bucket, "arena")
	rec := engine.GameRecord{
		ID:      "game_1",
		White:   "A",
		Black:   "B",
		Result:  "1-0",
		PGN:     "[Event \"x\"]\n\n1. e4 1-0\n",
		EndedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if err := a.RecordGame(context.Background(), rec); err != nil {
		t.Fatalf("RecordGame: %v", err)
	}
	if len(bucket.keys) != 1 || bucket.keys[0] != "games/2024/01/02/a-vs-b-game_1.pgn" {
		t.Fatalf("keys = %v", bucket.keys)
	}
	if bucket.bodies[0] != rec.PGN {
		t.Fatalf("body = %q", bucket.bodies[0])
	}
}

func TestRecordGameWrapsErrors(t *testing.T) {
	bucket := &fakeBucket{err: errors.New("denied")}
	a := NewS3Archiver(discard(), bucket, "arena")
	err := a.RecordGame(context.Background(), engine.GameRecord{ID: "game_2", White: "A", Black: "B", PGN: "*"})
	if err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("err = %v", err)
	}
}
