package index

import (
	"log/slog"

	"github.com/starford/panes/internal/storage"
)

// Sync walks the content vault and brings the index up to date:
//   - new/changed posts are compiled and upserted
//   - posts removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, b Builder, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, b, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeletePost(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile compiles data and upserts it into the DB.
func indexFile(db *DB, b Builder, path string, data []byte) error {
	e, err := b.Build(path, data)
	if err != nil {
		return err
	}
	return db.UpsertPost(e)
}
