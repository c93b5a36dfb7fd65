package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultAliyunEndpoint = "https://wanx.cn-beijing.aliyuncs.com"
	aliyunTasksPath       = "/api/v1/tasks"
	aliyunModel           = "wanx-v1"
	aliyunAction          = "CreateImageGenerationTask"
	aliyunAPIVersion      = "2024-03-13"
)

// AliyunConfig は通義万相クライアントの設定です。
type AliyunConfig struct {
	Credentials
	Endpoint string
}

// AliyunClient はタスク作成とポーリングの2段階で画像を生成するクライアントなのだ。
type AliyunClient struct {
	creds  Credentials
	http   *resty.Client
	opts   options
	prices PriceTable
}

// NewAliyunClient は AliyunClient を初期化するのだ。
func NewAliyunClient(cfg AliyunConfig, opts ...Option) (*AliyunClient, error) {
	if err := cfg.Credentials.validate(domain.ProviderAliyun); err != nil {
		return nil, err
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAliyunEndpoint
	}
	if _, err := hostOf(endpoint); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &AliyunClient{
		creds:  cfg.Credentials,
		http:   newRestyClient(endpoint, o),
		opts:   o,
		prices: AliyunPrices,
	}, nil
}

func (c *AliyunClient) Name() domain.Provider { return domain.ProviderAliyun }

func (c *AliyunClient) EstimateCost(width, height, count int) float64 {
	return c.prices.Cost(width, height, count)
}

type aliyunCreateBody struct {
	Action         string `json:"action"`
	Version        string `json:"version"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Seed           int64  `json:"seed"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumImages      int    `json:"num_images"`
	Model          string `json:"model"`
}

type aliyunCreateResponse struct {
	TaskID string `json:"task_id"`
}

type aliyunTaskResponse struct {
	Status  string `json:"status"`
	Results []struct {
		URL string `json:"url"`
	} `json:"results"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Error  string `json:"error"`
}

// Submit はタスクを作成して完了までポーリングするのだ。
// リトライは進行中のタスクを再開せず、毎回新しいタスクを作るのだよ。
func (c *AliyunClient) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req = c.opts.normalize(req)

	return Retry(ctx, c.opts.retry, c.opts.newTimer, func(ctx context.Context) (*Result, error) {
		taskID, err := c.createTask(ctx, req)
		if err != nil {
			return nil, err
		}
		return c.awaitTask(ctx, taskID, req)
	}, c.opts.retryNotifier(c.Name()))
}

// TestConnection は最小サイズの生成で疎通を確認するのだ。
func (c *AliyunClient) TestConnection(ctx context.Context) error {
	_, err := c.Submit(ctx, testRequest())
	return err
}

func (c *AliyunClient) createTask(ctx context.Context, req Request) (string, error) {
	if err := c.opts.wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(aliyunCreateBody{
		Action:         aliyunAction,
		Version:        aliyunAPIVersion,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           *req.Seed,
		Width:          req.Width,
		Height:         req.Height,
		NumImages:      req.Count,
		Model:          aliyunModel,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	var out aliyunCreateResponse
	if err := send(ctx, c.http, c.signedCall("create task", http.MethodPost, aliyunTasksPath, body), &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", &TaskCreationError{Provider: c.Name(), Message: "task_id がレスポンスに含まれていません"}
	}
	return out.TaskID, nil
}

func (c *AliyunClient) awaitTask(ctx context.Context, taskID string, req Request) (*Result, error) {
	path := aliyunTasksPath + "/" + taskID
	var last aliyunTaskResponse

	state, attempts, err := pollTask(ctx, pollSpec{
		maxPolls: c.opts.maxPolls,
		interval: c.opts.pollInterval,
		newTimer: c.opts.newTimer,
	}, func(ctx context.Context) (string, error) {
		var snap aliyunTaskResponse
		// GET の署名対象ボディは空オブジェクトなのだ
		poll := c.signedCall("poll task", http.MethodGet, path, []byte("{}"))
		poll.body = nil
		if err := send(ctx, c.http, poll, &snap); err != nil {
			return "", err
		}
		last = snap
		return snap.Status, nil
	})
	if err != nil {
		return nil, err
	}

	switch state {
	case TaskSucceeded:
		return c.toResult(taskID, last, req)
	case TaskFailed:
		msg := last.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &ProviderFailure{Provider: c.Name(), TaskID: taskID, Message: msg}
	default:
		return nil, &PollTimeoutError{Provider: c.Name(), TaskID: taskID, Attempts: attempts, LastState: state}
	}
}

func (c *AliyunClient) toResult(taskID string, snap aliyunTaskResponse, req Request) (*Result, error) {
	width, height := snap.Width, snap.Height
	if width == 0 {
		width = req.Width
	}
	if height == 0 {
		height = req.Height
	}

	images := make([]Image, 0, len(snap.Results))
	for _, r := range snap.Results {
		if r.URL == "" {
			continue
		}
		images = append(images, Image{URL: r.URL, Seed: *req.Seed, Width: width, Height: height})
	}
	if len(images) == 0 {
		return nil, &ProviderFailure{Provider: c.Name(), TaskID: taskID, Message: "成功したタスクに画像が含まれていません"}
	}

	return &Result{
		RequestID: taskID,
		Provider:  c.Name(),
		Images:    images,
		Cost:      c.prices.Cost(width, height, len(images)),
	}, nil
}

// signedCall は署名ヘッダ付きの呼び出しを組み立てるのだ。
func (c *AliyunClient) signedCall(op, method, path string, body []byte) call {
	ts := aliyunTimestamp(c.opts.now())
	return call{
		provider: c.Name(),
		op:       op,
		method:   method,
		path:     path,
		body:     body,
		headers: map[string]string{
			"X-Date":        ts,
			"Authorization": aliyunAuthorization(c.creds.AccessKeyID, c.creds.AccessKeySecret, method, path, ts, body),
		},
	}
}
