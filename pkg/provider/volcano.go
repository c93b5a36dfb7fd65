package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	DefaultVolcanoRegion = "cn-beijing"
	volcanoGeneratePath  = "/api/v1/image/generate"
)

var volcanoEndpoints = map[string]string{
	"cn-beijing":   "https://visual.volcengineapi.com",
	"cn-shanghai":  "https://visual.volcengineapi.com",
	"ap-singapore": "https://visual-ap-southeast-1.volcengineapi.com",
}

// VolcanoConfig は火山引擎クライアントの設定です。
// Endpoint を指定しない場合はリージョンから決まるのだ。
type VolcanoConfig struct {
	Credentials
	Region   string
	Endpoint string
}

// VolcanoClient は1回の呼び出しで画像を返すクライアントなのだ。
type VolcanoClient struct {
	creds  Credentials
	region string
	host   string
	http   *resty.Client
	opts   options
	prices PriceTable
}

// NewVolcanoClient は VolcanoClient を初期化するのだ。
func NewVolcanoClient(cfg VolcanoConfig, opts ...Option) (*VolcanoClient, error) {
	if err := cfg.Credentials.validate(domain.ProviderVolcano); err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = DefaultVolcanoRegion
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		var ok bool
		if endpoint, ok = volcanoEndpoints[region]; !ok {
			endpoint = volcanoEndpoints[DefaultVolcanoRegion]
		}
	}
	host, err := hostOf(endpoint)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &VolcanoClient{
		creds:  cfg.Credentials,
		region: region,
		host:   host,
		http:   newRestyClient(endpoint, o),
		opts:   o,
		prices: VolcanoPrices,
	}, nil
}

func (c *VolcanoClient) Name() domain.Provider { return domain.ProviderVolcano }

func (c *VolcanoClient) EstimateCost(width, height, count int) float64 {
	return c.prices.Cost(width, height, count)
}

type volcanoBody struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Seed           int64  `json:"seed"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	StylePreset    string `json:"style_preset"`
	NumImages      int    `json:"num_images"`
}

type volcanoResponse struct {
	RequestID string `json:"request_id"`
	Images    []struct {
		URL  string `json:"url"`
		Seed int64  `json:"seed"`
	} `json:"images"`
	Usage struct {
		Tokens  int     `json:"tokens"`
		CostCNY float64 `json:"cost_cny"`
	} `json:"usage"`
}

// Submit は署名付きで生成APIを呼び出すのだ。失敗時はリトライ方針に従って呼び直すのだよ。
func (c *VolcanoClient) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req = c.opts.normalize(req)
	if req.StylePreset == "" {
		req.StylePreset = domain.DefaultStylePreset
	}

	return Retry(ctx, c.opts.retry, c.opts.newTimer, func(ctx context.Context) (*Result, error) {
		return c.generate(ctx, req)
	}, c.opts.retryNotifier(c.Name()))
}

// TestConnection は最小サイズの生成で疎通を確認するのだ。
func (c *VolcanoClient) TestConnection(ctx context.Context) error {
	_, err := c.Submit(ctx, testRequest())
	return err
}

func (c *VolcanoClient) generate(ctx context.Context, req Request) (*Result, error) {
	if err := c.opts.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(volcanoBody{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           *req.Seed,
		Width:          req.Width,
		Height:         req.Height,
		StylePreset:    req.StylePreset,
		NumImages:      req.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	now := c.opts.now()
	auth := volcanoAuthorization(c.creds.AccessKeyID, c.creds.AccessKeySecret, volcanoSignInput{
		Method: http.MethodPost,
		URI:    volcanoGeneratePath,
		Host:   c.host,
		Region: c.region,
		Time:   now,
		Body:   body,
	})

	var out volcanoResponse
	err = send(ctx, c.http, call{
		provider: c.Name(),
		op:       "generate",
		method:   http.MethodPost,
		path:     volcanoGeneratePath,
		body:     body,
		headers: map[string]string{
			"X-Date":        volcanoTimestamp(now),
			"Authorization": auth,
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(out.Images))
	for _, img := range out.Images {
		if img.URL == "" {
			continue
		}
		seed := img.Seed
		if seed == 0 {
			seed = *req.Seed
		}
		images = append(images, Image{URL: img.URL, Seed: seed, Width: req.Width, Height: req.Height})
	}
	if len(images) == 0 {
		return nil, &ProviderFailure{Provider: c.Name(), TaskID: out.RequestID, Message: "レスポンスに画像が含まれていません"}
	}

	// 実際の請求額が返っていればそれを優先し、無ければ料金表で見積もるのだ
	cost := out.Usage.CostCNY
	if cost <= 0 {
		cost = c.prices.Cost(req.Width, req.Height, len(images))
	}

	requestID := out.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return &Result{
		RequestID: requestID,
		Provider:  c.Name(),
		Images:    images,
		Cost:      cost,
	}, nil
}
