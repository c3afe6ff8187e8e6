// Package account talks to the platform's account endpoints: QR code login,
// the login/VIP status check, and cookie file persistence.
package account

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/session"
)

// Endpoints
const (
	DefaultAPIBaseURL      = "https://api.bilibili.com"
	DefaultPassportBaseURL = "https://passport.bilibili.com"
	DefaultCookieURL       = "https://www.bilibili.com/"
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

	qrGeneratePath = "/x/passport-login/web/qrcode/generate"
	qrPollPath     = "/x/passport-login/web/qrcode/poll"
	navPath        = "/x/web-interface/nav"
)

// Response codes
const (
	codeOK              = 0
	codeNotLoggedIn     = -101
	qrCodeSuccess       = 0
	qrCodeExpired       = 86038
	qrCodeScanned       = 86090
	qrCodeNotScanned    = 86101
	defaultTimeout      = 15 * time.Second
	defaultRequestsRate = 2
)

// Options configures the client
type Options struct {
	APIBaseURL        string
	PassportBaseURL   string
	CookieURL         string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

func (o *Options) applyDefaults() {
	if o.APIBaseURL == "" {
		o.APIBaseURL = DefaultAPIBaseURL
	}
	if o.PassportBaseURL == "" {
		o.PassportBaseURL = DefaultPassportBaseURL
	}
	if o.CookieURL == "" {
		o.CookieURL = DefaultCookieURL
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = defaultRequestsRate
	}
}

// Client is the account API client. Cookies received from the platform are
// kept in its jar and can be saved to a cookie file.
type Client struct {
	http      *resty.Client
	jar       http.CookieJar
	cookieURL *url.URL
	opts      Options
	limiter   *rate.Limiter
	log       logrus.FieldLogger
}

// New creates an account client
func New(opts Options, log logrus.FieldLogger) (*Client, error) {
	opts.applyDefaults()
	cookieURL, err := url.Parse(opts.CookieURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetCookieJar(jar).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Referer", opts.CookieURL)

	return &Client{
		http:      client,
		jar:       jar,
		cookieURL: cookieURL,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		log:       log,
	}, nil
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type qrGenerateData struct {
	URL       string `json:"url"`
	QRCodeKey string `json:"qrcode_key"`
}

type qrPollData struct {
	URL     string `json:"url"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type navData struct {
	IsLogin   bool   `json:"isLogin"`
	Uname     string `json:"uname"`
	Mid       int64  `json:"mid"`
	VipType   int    `json:"vipType"`
	VipStatus int    `json:"vipStatus"`
}

func (c *Client) get(ctx context.Context, rawURL string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(rawURL)
	if err != nil {
		return model.WrapError(model.ErrorNetwork, err, "account request failed")
	}
	switch {
	case resp.StatusCode() == http.StatusPreconditionFailed || resp.StatusCode() == http.StatusTooManyRequests:
		return model.NewError(model.ErrorRateLimited, "account api: %s", resp.Status())
	case resp.IsError():
		return model.NewError(model.ErrorNetwork, "account api: %s", resp.Status())
	}
	return nil
}

// GenerateQR requests a new login QR code
func (c *Client) GenerateQR(ctx context.Context) (session.Challenge, error) {
	var out envelope[qrGenerateData]
	if err := c.get(ctx, c.opts.PassportBaseURL+qrGeneratePath, nil, &out); err != nil {
		return session.Challenge{}, err
	}
	if out.Code != codeOK || out.Data.QRCodeKey == "" {
		return session.Challenge{}, fmt.Errorf("qr generate: code %d: %s", out.Code, out.Message)
	}
	return session.Challenge{
		URL:       out.Data.URL,
		Key:       out.Data.QRCodeKey,
		ExpiresAt: time.Now().Add(session.DefaultQRLifetime),
	}, nil
}

// PollQR checks a pending QR login. On success the login cookies are stored
// in the client's jar.
func (c *Client) PollQR(ctx context.Context, key string) (session.QRState, error) {
	var out envelope[qrPollData]
	if err := c.get(ctx, c.opts.PassportBaseURL+qrPollPath, map[string]string{"qrcode_key": key}, &out); err != nil {
		return session.QRState{}, err
	}
	if out.Code != codeOK {
		return session.QRState{}, fmt.Errorf("qr poll: code %d: %s", out.Code, out.Message)
	}

	state := session.QRState{Message: out.Data.Message}
	switch out.Data.Code {
	case qrCodeSuccess:
		state.Status = session.QRSuccess
		c.storeConfirmCookies(out.Data.URL)
	case qrCodeNotScanned:
		state.Status = session.QRWaitingScan
	case qrCodeScanned:
		state.Status = session.QRWaitingConfirm
	case qrCodeExpired:
		state.Status = session.QRExpired
	default:
		state.Status = session.QRStatus(fmt.Sprintf("code_%d", out.Data.Code))
	}
	return state, nil
}

// The confirm URL repeats the login cookies as query parameters.
func (c *Client) storeConfirmCookies(confirmURL string) {
	u, err := url.Parse(confirmURL)
	if err != nil || confirmURL == "" {
		return
	}
	var cookies []*http.Cookie
	for _, name := range []string{"DedeUserID", "DedeUserID__ckMd5", "SESSDATA", "bili_jct"} {
		if v := u.Query().Get(name); v != "" {
			cookies = append(cookies, &http.Cookie{Name: name, Value: v, Path: "/", Domain: cookieDomain(c.cookieURL)})
		}
	}
	if len(cookies) > 0 {
		c.jar.SetCookies(c.cookieURL, cookies)
	}
}

// Status queries the login and VIP state for the cookies in the jar
func (c *Client) Status(ctx context.Context) (session.Status, error) {
	var out envelope[navData]
	if err := c.get(ctx, c.opts.APIBaseURL+navPath, nil, &out); err != nil {
		return session.Status{}, err
	}
	switch out.Code {
	case codeOK:
	case codeNotLoggedIn:
		return session.Status{}, nil
	default:
		return session.Status{}, fmt.Errorf("nav: code %d: %s", out.Code, out.Message)
	}
	return session.Status{
		LoggedIn:  out.Data.IsLogin,
		VIP:       out.Data.IsLogin && out.Data.VipStatus == 1 && out.Data.VipType > 0,
		VipType:   out.Data.VipType,
		Username:  out.Data.Uname,
		AccountID: out.Data.Mid,
	}, nil
}

// CheckLoginAndVip loads the session's cookie file, if any, and queries the status
func (c *Client) CheckLoginAndVip(ctx context.Context, sess session.Session) (session.Status, error) {
	if sess.CookieRef != "" {
		if err := c.LoadCookies(sess.CookieRef); err != nil {
			return session.Status{}, err
		}
	}
	st, err := c.Status(ctx)
	if err != nil {
		return st, err
	}
	c.log.WithFields(logrus.Fields{
		"logged_in": st.LoggedIn,
		"vip":       st.VIP,
		"vip_type":  st.VipType,
	}).Debug("Checked login status")
	return st, nil
}

// FormatReport renders a status as the text shown by the status command
func FormatReport(st session.Status, source string) string {
	vip := "no active VIP"
	if st.VIP {
		vip = fmt.Sprintf("active VIP (type %d)", st.VipType)
	}
	return fmt.Sprintf("source: %s\nisLogin: %t\nuser: %s (mid %d)\nmembership: %s", source, st.LoggedIn, st.Username, st.AccountID, vip)
}
