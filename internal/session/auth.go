package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// QR login defaults
const (
	DefaultPollInterval = 2 * time.Second
	DefaultQRLifetime   = 180 * time.Second
)

// QRStatus is the state of a pending QR login
type QRStatus string

const (
	QRWaitingScan    QRStatus = "waiting_scan"
	QRWaitingConfirm QRStatus = "waiting_confirm"
	QRSuccess        QRStatus = "success"
	QRExpired        QRStatus = "expired"
)

// ErrQRExpired is returned when the challenge expires before confirmation
var ErrQRExpired = errors.New("qr code expired")

// Challenge is what the presentation layer renders as a QR code
type Challenge struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

// QRState is one poll result
type QRState struct {
	Status  QRStatus
	Message string
}

// Account is the platform account API used by the login flow
type Account interface {
	GenerateQR(ctx context.Context) (Challenge, error)
	PollQR(ctx context.Context, key string) (QRState, error)
	SaveCookies(path string) error
	LoadCookies(path string) error
}

// Checker reports login and VIP state for a session's cookies
type Checker interface {
	CheckLoginAndVip(ctx context.Context, sess Session) (Status, error)
}

// Authenticator runs the QR login flow and publishes sessions to a Store
type Authenticator struct {
	account      Account
	checker      Checker
	store        *Store
	cookieFile   string
	pollInterval time.Duration
	log          logrus.FieldLogger
}

// NewAuthenticator creates the login flow for one cookie file
func NewAuthenticator(account Account, checker Checker, store *Store, cookieFile string, log logrus.FieldLogger) *Authenticator {
	return &Authenticator{
		account:      account,
		checker:      checker,
		store:        store,
		cookieFile:   cookieFile,
		pollInterval: DefaultPollInterval,
		log:          log,
	}
}

// SetPollInterval changes how often WaitQRLogin polls
func (a *Authenticator) SetPollInterval(d time.Duration) {
	if d > 0 {
		a.pollInterval = d
	}
}

// StartQRLogin requests a new challenge
func (a *Authenticator) StartQRLogin(ctx context.Context) (Challenge, error) {
	ch, err := a.account.GenerateQR(ctx)
	if err != nil {
		return Challenge{}, fmt.Errorf("generate qr code: %w", err)
	}
	if ch.ExpiresAt.IsZero() {
		ch.ExpiresAt = time.Now().Add(DefaultQRLifetime)
	}
	return ch, nil
}

// WaitQRLogin polls until the challenge is confirmed, expires, or ctx ends.
// onState receives every poll result. On success the cookies are saved and
// the refreshed session is published.
func (a *Authenticator) WaitQRLogin(ctx context.Context, ch Challenge, onState func(QRState)) (Session, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Session{}, ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(ch.ExpiresAt) {
			return Session{}, ErrQRExpired
		}

		state, err := a.account.PollQR(ctx, ch.Key)
		if err != nil {
			return Session{}, fmt.Errorf("poll qr login: %w", err)
		}
		if onState != nil {
			onState(state)
		}

		switch state.Status {
		case QRWaitingScan, QRWaitingConfirm:
			continue
		case QRExpired:
			return Session{}, ErrQRExpired
		case QRSuccess:
			if err := a.account.SaveCookies(a.cookieFile); err != nil {
				return Session{}, fmt.Errorf("save cookies: %w", err)
			}
			a.log.WithField("cookie_file", a.cookieFile).Info("QR login confirmed, cookies saved")
			return a.check(ctx)
		default:
			return Session{}, fmt.Errorf("qr login: %s", state.Message)
		}
	}
}

// Refresh loads the cookie file and re-checks login and VIP state
func (a *Authenticator) Refresh(ctx context.Context) (Session, error) {
	if err := a.account.LoadCookies(a.cookieFile); err != nil {
		a.store.Publish(Session{CheckedAt: time.Now()})
		return a.store.Snapshot(), fmt.Errorf("load cookies: %w", err)
	}
	return a.check(ctx)
}

func (a *Authenticator) check(ctx context.Context) (Session, error) {
	st, err := a.checker.CheckLoginAndVip(ctx, Session{CookieRef: a.cookieFile})
	if err != nil {
		return a.store.Snapshot(), fmt.Errorf("check login: %w", err)
	}
	sess := a.store.Apply(a.cookieFile, st)
	a.log.WithFields(logrus.Fields{
		"authenticated": sess.Authenticated,
		"vip":           sess.VIP,
		"user":          sess.Username,
	}).Info("Session updated")
	return sess, nil
}
