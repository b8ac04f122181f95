package legacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
)

// Report counts what an import did. Existing users and searches are skipped,
// so a rerun reports them as skipped rather than failing.
type Report struct {
	UsersCreated    int
	UsersSkipped    int
	SearchesCreated int
	SearchesSkipped int
	SearchesInvalid int
}

// Importer writes decoded exports through the repositories.
type Importer struct {
	Users    ports.UserRepository
	Searches ports.SearchRepository
	Logger   *slog.Logger
	Now      func() time.Time
}

func (im *Importer) logger() *slog.Logger {
	if im.Logger != nil {
		return im.Logger
	}
	return slog.Default()
}

// ImportUsers creates accounts. Passwords are expected to be bcrypt hashes already.
func (im *Importer) ImportUsers(ctx context.Context, users []domain.User, rep *Report) error {
	for i := range users {
		u := users[i]
		err := im.Users.Create(ctx, &u)
		switch {
		case errors.Is(err, domain.ErrUserExists):
			rep.UsersSkipped++
			im.logger().Info("user exists, skipped", "user", u.Username)
		case err != nil:
			return fmt.Errorf("create user %q: %w", u.Username, err)
		default:
			rep.UsersCreated++
		}
	}
	return nil
}

// ImportHistory stores each entry as a search record. Entries that do not
// convert, or whose owner does not exist, are logged and counted as invalid.
func (im *Importer) ImportHistory(ctx context.Context, history []Search, rep *Report) error {
	now := time.Now
	if im.Now != nil {
		now = im.Now
	}
	owners := make(map[string]bool)

	for _, s := range history {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := s.Record(now())
		if err != nil {
			rep.SearchesInvalid++
			im.logger().Warn("invalid legacy search", "name", s.Name, "user", s.UserID, "error", err)
			continue
		}

		known, ok := owners[rec.UserID]
		if !ok {
			_, err := im.Users.Get(ctx, rec.UserID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("lookup user %q: %w", rec.UserID, err)
			}
			known = err == nil
			owners[rec.UserID] = known
		}
		if !known {
			rep.SearchesInvalid++
			im.logger().Warn("legacy search owner missing", "name", rec.Name, "user", rec.UserID)
			continue
		}

		err = im.Searches.Create(ctx, rec)
		switch {
		case errors.Is(err, domain.ErrSearchNameTaken):
			rep.SearchesSkipped++
		case err != nil:
			return fmt.Errorf("create search %q: %w", rec.Name, err)
		default:
			rep.SearchesCreated++
		}
	}
	return nil
}
