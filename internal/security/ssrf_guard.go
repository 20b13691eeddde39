// Package security は外部送信先の検証とユーザー入力の無害化を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService は外部への送信先を制限する。
// AIプロバイダとStripeへのHTTPクライアント、起動時のベースURL検証、
// チェックアウトの戻り先オリジン検証で使う。
type SSRFGuardService interface {
	// NewSafeClient は接続時に解決後のIPを検査するHTTPクライアントを返す。
	NewSafeClient(timeout time.Duration) *http.Client
	// ValidateURL はDNS解決なしでURLを検査する。
	ValidateURL(rawURL string) error
	// ValidateOrigin はoriginがallowedのいずれかと一致するかを検査する。
	ValidateOrigin(origin string, allowed []string) error
}

// safeClientPort はNewSafeClientが接続を許すポート。スキームはhttpsのみ。
const safeClientPort = 443

var errEmptyURL = errors.New("empty URL")

// ssrfGuard はsafeurlを使ったSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(safeClientPort).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL はNewSafeClientで到達できないURLを起動時に弾く。
// httpsかつ443番ポートで、ホストが内部アドレスやlocalhostでないことを確認する。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errEmptyURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("scheme %q is not allowed, use https", u.Scheme)
	}
	if port := u.Port(); port != "" && port != fmt.Sprint(safeClientPort) {
		return fmt.Errorf("port %s is not allowed", port)
	}
	return checkHost(u.Hostname())
}

// checkHost はホスト名またはIPリテラルが外部の送信先として使えるかを調べる。
func checkHost(host string) error {
	if host == "" {
		return errors.New("URL has no host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		// IPリテラルでないホスト名は接続時にsafeurlが検査する
		return nil
	}
	if isInternalAddr(addr.Unmap()) {
		return fmt.Errorf("blocked IP address: %s", addr)
	}
	return nil
}

// isInternalAddr はループバック、プライベート、リンクローカル（メタデータIPを含む）、未指定、
// および0.0.0.0/8に属するアドレスを内部とみなす。
func isInternalAddr(addr netip.Addr) bool {
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return true
	}
	return addr.Is4() && addr.As4()[0] == 0
}

// ValidateOrigin はoriginがscheme://host[:port]だけの形式で、allowedに含まれることを確認する。
// 末尾のスラッシュと大文字小文字の違いは無視する。
func (g *ssrfGuard) ValidateOrigin(origin string, allowed []string) error {
	origin = strings.TrimSuffix(origin, "/")
	if origin == "" {
		return errors.New("empty origin")
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("disallowed scheme: %s", u.Scheme)
	}
	if u.Host == "" || u.User != nil || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("not a bare origin: %s", origin)
	}

	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}
