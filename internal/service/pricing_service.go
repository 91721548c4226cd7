package service

import (
	"context"
	"encoding/json"
	"errors"
	"localchat-go/internal/config"
	"localchat-go/pkg/log"
	"localchat-go/pkg/pricing"
	"time"

	"github.com/go-redis/redis/v8"
)

const livePricingCacheKey = "pricing:openrouter"

// 价格数据来源
const (
	PricingSourceLocal = "Local Pricing Database"
	PricingSourceLive  = "OpenRouter API (Live)"
	pricingLocalDate   = "2025-01-30"
)

// PricingMetadata 描述价格数据的来源。
type PricingMetadata struct {
	LastUpdated string `json:"lastUpdated"`
	Source      string `json:"source"`
	Currency    string `json:"currency"`
	Unit        string `json:"unit"`
}

// PricingResult 是价格查询的结果，Data 为列表或按代际分组的 map。
type PricingResult struct {
	Data     interface{}     `json:"data"`
	Metadata PricingMetadata `json:"metadata"`
}

// PricingService 提供模型价格查询。
type PricingService interface {
	// Pricing 返回价格表。live 为 true 时尝试拉取实时价格，失败则回退到本地价格表。
	Pricing(ctx context.Context, grouped, live bool) PricingResult
}

// LiveFetcher 拉取实时价格，按代际分组。
type LiveFetcher func(ctx context.Context) (map[string][]pricing.ModelPricing, error)

type pricingService struct {
	fetch    LiveFetcher
	rdb      *redis.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// NewPricingService 创建价格服务。rdb 为 nil 时不缓存实时价格。
func NewPricingService(cfg config.PricingConfig, rdb *redis.Client) PricingService {
	fetch := func(ctx context.Context) (map[string][]pricing.ModelPricing, error) {
		return pricing.FetchOpenRouter(ctx, cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey)
	}
	return newPricingService(fetch, rdb, time.Duration(cfg.CacheTTLMinutes)*time.Minute, time.Now)
}

func newPricingService(fetch LiveFetcher, rdb *redis.Client, ttl time.Duration, now func() time.Time) *pricingService {
	return &pricingService{fetch: fetch, rdb: rdb, cacheTTL: ttl, now: now}
}

func metadata(source, updated string) PricingMetadata {
	return PricingMetadata{LastUpdated: updated, Source: source, Currency: "USD", Unit: "per million tokens"}
}

func (s *pricingService) Pricing(ctx context.Context, grouped, live bool) PricingResult {
	if live {
		data, err := s.livePricing(ctx)
		if err == nil {
			return PricingResult{Data: data, Metadata: metadata(PricingSourceLive, s.now().UTC().Format(time.RFC3339))}
		}
		if !errors.Is(err, pricing.ErrNoAPIKey) {
			log.Warnw("获取实时价格失败，回退到本地价格表", "error", err)
		}
	}
	if grouped {
		return PricingResult{Data: pricing.Grouped(), Metadata: metadata(PricingSourceLocal, pricingLocalDate)}
	}
	return PricingResult{Data: pricing.All(), Metadata: metadata(PricingSourceLocal, pricingLocalDate)}
}

func (s *pricingService) livePricing(ctx context.Context) (map[string][]pricing.ModelPricing, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, livePricingCacheKey).Bytes()
		if err == nil {
			var data map[string][]pricing.ModelPricing
			if jsonErr := json.Unmarshal(cached, &data); jsonErr == nil {
				return data, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Warnw("读取价格缓存失败", "error", err)
		}
	}

	data, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil && s.cacheTTL > 0 {
		if b, err := json.Marshal(data); err == nil {
			if err := s.rdb.Set(ctx, livePricingCacheKey, b, s.cacheTTL).Err(); err != nil {
				log.Warnw("写入价格缓存失败", "error", err)
			}
		}
	}
	return data, nil
}
