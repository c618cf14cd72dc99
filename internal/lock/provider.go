package lock

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"driftsync/internal/core"
)

// ProviderFor selects the provider matching a dialect's lock strategy. The
// path argument is only used by the file strategy and names the sqlite
// database file the lock guards.
func ProviderFor(strategy core.LockStrategy, db *sql.DB, path string, log *logrus.Entry) (Provider, error) {
	switch strategy {
	case core.LockAdvisory:
		return NewAdvisoryProvider(db), nil
	case core.LockNamed:
		return NewNamedProvider(db), nil
	case core.LockFile:
		return NewFileProvider(LockFilePath(path), log), nil
	default:
		return nil, fmt.Errorf("no lock provider for strategy %q", strategy)
	}
}
