package store

import (
	"context"

	"github.com/streamingfast/logging"
	"go.uber.org/zap"
)

// zlog is this package's default logger: a package-scoped *zap.Logger that
// a host process can reconfigure globally via streamingfast/logging's
// registry.
var zlog, _ = logging.PackageLogger("store", "github.com/ishkhan42/ustore/store")

// loggerFrom prefers a logger embedded in ctx if one was attached
// upstream, falling back to the package default.
func loggerFrom(ctx context.Context) *zap.Logger {
	return logging.Logger(ctx, zlog)
}
