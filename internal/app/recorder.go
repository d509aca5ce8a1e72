package app

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"llmarena/internal/engine"
)

// multiRecorder hands each finished game to every recorder and reports all
// failures together.
type multiRecorder []engine.Recorder

func (m multiRecorder) RecordGame(ctx context.Context, rec engine.GameRecord) error {
	var errs *multierror.Error
	for _, r := range m {
		errs = multierror.Append(errs, r.RecordGame(ctx, rec))
	}
	return errs.ErrorOrNil()
}
