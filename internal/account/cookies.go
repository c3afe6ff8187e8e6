package account

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	netscapeHeader  = "# Netscape HTTP Cookie File"
	cookieLifetime  = 180 * 24 * time.Hour
	cookieFilePerms = 0600
	httpOnlyPrefix  = "#HttpOnly_"
)

// cookieDomain is the domain attribute used for saved cookies. IP hosts get
// host-only cookies.
func cookieDomain(u *url.URL) string {
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return ""
	}
	return strings.TrimPrefix(host, "www.")
}

// SaveCookies writes the platform cookies in Netscape format, readable by
// yt-dlp's --cookies option.
func (c *Client) SaveCookies(path string) error {
	cookies := c.jar.Cookies(c.cookieURL)
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies to save")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	domain := cookieDomain(c.cookieURL)
	includeSub := "TRUE"
	if domain == "" {
		domain = c.cookieURL.Hostname()
		includeSub = "FALSE"
	} else {
		domain = "." + domain
	}
	secure := "FALSE"
	if c.cookieURL.Scheme == "https" {
		secure = "TRUE"
	}
	expires := time.Now().Add(cookieLifetime).Unix()

	var b strings.Builder
	b.WriteString(netscapeHeader + "\n")
	for _, ck := range cookies {
		fmt.Fprintf(&b, "%s\t%s\t/\t%s\t%d\t%s\t%s\n", domain, includeSub, secure, expires, ck.Name, ck.Value)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), cookieFilePerms); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadCookies reads a Netscape cookie file into the client's jar
func (c *Client) LoadCookies(path string) error {
	cookies, err := ReadCookieFile(path)
	if err != nil {
		return err
	}
	domain := cookieDomain(c.cookieURL)
	for _, ck := range cookies {
		ck.Domain = domain
	}
	c.jar.SetCookies(c.cookieURL, cookies)
	return nil
}

// ReadCookieFile parses a Netscape cookie file. Expired entries are skipped.
func ReadCookieFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	now := time.Now().Unix()
	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, httpOnlyPrefix)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("%s:%d: expected 7 tab-separated fields, got %d", path, lineNo, len(fields))
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad expiry: %w", path, lineNo, err)
		}
		if expires != 0 && expires < now {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:   fields[5],
			Value:  fields[6],
			Path:   fields[2],
			Secure: fields[3] == "TRUE",
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}
