package panels

import (
	"context"
	"log/slog"

	"idverify/pkg/requestcontext"
)

// LogSubmitter records submissions in the log instead of calling a backend.
// Photos are never logged, only their sizes.
type LogSubmitter struct {
	logger *slog.Logger
}

func NewLogSubmitter(logger *slog.Logger) *LogSubmitter {
	return &LogSubmitter{logger: logger}
}

func (s *LogSubmitter) Submit(ctx context.Context, sub Submission) error {
	s.logger.InfoContext(ctx, "verification submitted",
		"request_id", requestcontext.RequestID(ctx),
		"mount_id", sub.MountID,
		"portrait_bytes", sub.PortraitPhoto.Size(),
		"id_photo_bytes", sub.IDPhoto.Size(),
		"name_match", sub.NameMatch,
	)
	return nil
}
