package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/memos"
	"github.com/MarcoPoloResearchLab/mblog/backend/internal/settings"
	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 64
	defaultTimeout   = 10 * time.Second
	tokenHeader      = "token"
)

var (
	errMissingSource   = errors.New("announcement source is required")
	errMissingSettings = errors.New("settings reader is required")
)

// Source loads the announcement for a memo; nil means there is nothing to send.
type Source interface {
	Announcement(ctx context.Context, memoID int64) (*memos.Announcement, error)
}

// SettingsReader resolves runtime settings.
type SettingsReader interface {
	Get(ctx context.Context, key string) (string, error)
}

// Config describes the dispatcher dependencies.
type Config struct {
	Source    Source
	Settings  SettingsReader
	Client    *fasthttp.Client
	QueueSize int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Dispatcher posts announcements for newly created public memos to the configured URL.
// Delivery happens on the goroutine running Run; MemoCreated never blocks.
type Dispatcher struct {
	source   Source
	settings SettingsReader
	client   *fasthttp.Client
	queue    chan int64
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher validates dependencies and constructs a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.Settings == nil {
		return nil, errMissingSettings
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &fasthttp.Client{Name: "mblog-webhook"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		source:   cfg.Source,
		settings: cfg.Settings,
		client:   client,
		queue:    make(chan int64, queueSize),
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// MemoCreated enqueues memoID for delivery. When the queue is full the notice is dropped.
func (d *Dispatcher) MemoCreated(memoID int64) {
	select {
	case d.queue <- memoID:
	default:
		d.logger.Warn("webhook queue full, dropping notice", zap.Int64("memo_id", memoID))
	}
}

// Run delivers queued notices until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case memoID := <-d.queue:
			if err := d.deliver(ctx, memoID); err != nil {
				d.logger.Warn("webhook delivery failed", zap.Int64("memo_id", memoID), zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, memoID int64) error {
	url, err := d.settings.Get(ctx, settings.KeyWebhookURL)
	if err != nil {
		return fmt.Errorf("read webhook url: %w", err)
	}
	if url == "" {
		return nil
	}
	announcement, err := d.source.Announcement(ctx, memoID)
	if err != nil {
		return fmt.Errorf("load announcement: %w", err)
	}
	if announcement == nil {
		return nil
	}
	token, err := d.settings.Get(ctx, settings.KeyWebhookToken)
	if err != nil {
		return fmt.Errorf("read webhook token: %w", err)
	}
	body, err := json.Marshal(announcement)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}

	request := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(request)
	response := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(response)

	request.SetRequestURI(url)
	request.Header.SetMethod(fasthttp.MethodPost)
	request.Header.SetContentType("application/json")
	if token != "" {
		request.Header.Set(tokenHeader, token)
	}
	request.SetBody(body)

	if err := d.client.DoTimeout(request, response, d.timeout); err != nil {
		return fmt.Errorf("post announcement: %w", err)
	}
	if status := response.StatusCode(); status >= fasthttp.StatusBadRequest {
		return fmt.Errorf("webhook responded with status %d", status)
	}
	d.logger.Debug("webhook delivered", zap.Int64("memo_id", memoID))
	return nil
}
