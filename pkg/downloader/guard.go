package downloader

import (
	"fmt"
	"net"
	"net/url"
)

// CheckURL は取得先の URL を検証するのだ。http/https 以外のスキームと、
// プライベート・ループバック・リンクローカルに解決されるホストを拒否するのだよ。
func CheckURL(rawURL string) error {
	return checkURL(rawURL, net.LookupIP)
}

func checkURL(rawURL string, lookup func(host string) ([]net.IP, error)) error {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("URLパース失敗: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("不許可スキーム: %s", parsed.Scheme)
	}

	ips, err := lookup(parsed.Hostname())
	if err != nil {
		return fmt.Errorf("ホスト '%s' の名前解決に失敗しました: %w", parsed.Hostname(), err)
	}
	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("制限されたネットワークへのアクセスを検知: %s", ip)
		}
	}
	return nil
}
