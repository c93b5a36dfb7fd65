package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"github.com/go-resty/resty/v2"
)

const maxErrorBody = 512

func newRestyClient(endpoint string, o options) *resty.Client {
	return resty.New().
		SetBaseURL(endpoint).
		SetTimeout(o.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "go-storyboard-kit/1.0")
}

func hostOf(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("エンドポイントのパースに失敗しました: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("エンドポイントにホストがありません: %q", endpoint)
	}
	return u.Host, nil
}

type call struct {
	provider domain.Provider
	op       string
	method   string
	path     string
	headers  map[string]string
	body     []byte
}

// send は1回のHTTP呼び出しを行い、結果を out にデコードするのだ。
// 401/403 は AuthError、それ以外の非2xxと通信失敗は NetworkError に写すのだよ。
func send(ctx context.Context, client *resty.Client, c call, out any) error {
	req := client.R().
		SetContext(ctx).
		SetHeaders(c.headers).
		ForceContentType("application/json").
		SetResult(out)
	if c.body != nil {
		req.SetBody(c.body)
	}

	resp, err := req.Execute(c.method, c.path)
	if err != nil {
		// 呼び出し元のキャンセルはそのまま返し、リトライさせないのだ
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &NetworkError{Provider: c.provider, Op: c.op, Err: err}
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{Provider: c.provider, StatusCode: code, Message: truncate(resp.String())}
	case resp.IsError() || code >= http.StatusMultipleChoices:
		return &NetworkError{Provider: c.provider, Op: c.op, StatusCode: code, Err: errors.New(truncate(resp.String()))}
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
