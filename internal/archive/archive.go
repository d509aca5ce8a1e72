// Package archive uploads finished games as PGN files to S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"

	"llmarena/internal/engine"
)

// ObjectPutter is the part of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds a client from the default credential chain, or from
// static keys when both are set. A custom endpoint switches to path-style
// addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load s3 config")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type S3Archiver struct {
	log    *slog.Logger
	client ObjectPutter
	bucket string
}

func NewS3Archiver(log *slog.Logger, client ObjectPutter, bucket string) *S3Archiver {
	return &S3Archiver{
		log:    log.With(slog.String("component", "archive")),
		client: client,
		bucket: bucket,
	}
}

// Key is the object key of a game: games/YYYY/MM/DD/<white-vs-black>-<id>.pgn,
// dated by the game's end.
func Key(rec engine.GameRecord) string {
	at := rec.EndedAt
	if at.IsZero() {
		at = rec.StartedAt
	}
	at = at.UTC()
	return fmt.Sprintf("games/%04d/%02d/%02d/%s-%s.pgn",
		at.Year(), int(at.Month()), at.Day(), FileStem(rec), rec.ID)
}

// FileStem is the slug of the players, used for keys and download names.
func FileStem(rec engine.GameRecord) string {
	return slug.Make(rec.White + " vs " + rec.Black)
}

// RecordGame uploads the game's PGN.
func (a *S3Archiver) RecordGame(ctx context.Context, rec engine.GameRecord) error {
	pgn := rec.PGN
	if pgn == "" {
		pgn = engine.FormatPGN(rec)
	}
	key := Key(rec)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(pgn)),
		ContentType: aws.String("application/x-chess-pgn"),
		Metadata: map[string]string{
			"white":  rec.White,
			"black":  rec.Black,
			"result": rec.Result,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "upload %s", key)
	}
	a.log.Debug("game_archived", slog.String("game", rec.ID), slog.String("key", key))
	return nil
}
