package cli

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ytget/mediaporter/internal/account"
	"github.com/ytget/mediaporter/internal/config"
	"github.com/ytget/mediaporter/internal/extractor"
	"github.com/ytget/mediaporter/internal/session"
)

// deps wires the services shared by the commands
type deps struct {
	settings config.Settings
	log      logrus.FieldLogger
	sessions *session.Store
	account  *account.Client
	auth     *session.Authenticator
	backend  *extractor.Backend
}

func newDeps(s config.Settings, log logrus.FieldLogger) (*deps, error) {
	client, err := account.New(account.Options{}, log.WithField("component", "account"))
	if err != nil {
		return nil, err
	}
	sessions := session.NewStore()
	return &deps{
		settings: s,
		log:      log,
		sessions: sessions,
		account:  client,
		auth:     session.NewAuthenticator(client, client, sessions, s.CookieFile, log.WithField("component", "auth")),
		backend: extractor.New(extractor.Options{
			Checker:  client,
			Sessions: sessions,
		}, log.WithField("component", "extractor")),
	}, nil
}

// restoreSession publishes the session from a saved cookie file, if any.
// Failures leave the anonymous session in place.
func (d *deps) restoreSession(ctx context.Context) session.Session {
	if _, err := os.Stat(d.settings.CookieFile); errors.Is(err, os.ErrNotExist) {
		d.log.Debug("No cookie file, continuing anonymously")
		return d.sessions.Snapshot()
	}
	sess, err := d.auth.Refresh(ctx)
	if err != nil {
		d.log.WithError(err).Warn("Could not restore login session, continuing anonymously")
	}
	return sess
}
