package embedding

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Malowking/guidekb/core/common"
	"github.com/Malowking/guidekb/core/config"
	"github.com/Malowking/guidekb/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/panjf2000/ants/v2"
)

// BatchOptions 批量向量化参数
type BatchOptions struct {
	BatchSize    int           // 每批文本数（避免API限制）
	Concurrency  int           // 并发批次数（避免API限流）
	MaxRetries   int           // 单批最大重试次数
	InitialDelay time.Duration // 初始退避
	MaxDelay     time.Duration // 最大退避
}

// DefaultBatchOptions 默认批量参数
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		BatchSize:    30,
		Concurrency:  3,
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// BatchOptionsFrom 从配置生成批量参数，非法值回退到默认
func BatchOptionsFrom(cfg config.EmbeddingConfig) BatchOptions {
	opts := DefaultBatchOptions()
	if cfg.BatchSize > 0 {
		opts.BatchSize = cfg.BatchSize
	}
	if cfg.Concurrency > 0 {
		opts.Concurrency = cfg.Concurrency
	}
	if cfg.MaxRetries >= 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	return opts
}

func (o BatchOptions) normalized() BatchOptions {
	def := DefaultBatchOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = def.InitialDelay
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	return o
}

type batch struct {
	index int
	start int
	end   int
}

// EmbedText 单条文本向量化
func EmbedText(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := EmbedTexts(ctx, e, []string{text}, BatchOptions{BatchSize: 1, Concurrency: 1})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts 批量向量化，结果顺序与输入一致
// 分批后在 ants 协程池中并发执行，单批失败按指数退避重试
func EmbedTexts(ctx context.Context, e Embedder, texts []string, opts BatchOptions) ([][]float32, error) {
	if e == nil {
		return nil, errors.New(errors.ErrEmbeddingUnavailable, "embedder is nil")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	opts = opts.normalized()

	batches := createBatches(len(texts), opts.BatchSize)
	out := make([][]float32, len(texts))

	// 单批直接执行，不起协程池
	if len(batches) == 1 {
		vectors, err := embedBatchWithRetry(ctx, e, texts, batches[0], opts)
		if err != nil {
			return nil, err
		}
		copy(out, vectors)
		return out, nil
	}

	g.Log().Debugf(ctx, "Embedding %d texts in %d batches (BatchSize: %d, Concurrency: %d)",
		len(texts), len(batches), opts.BatchSize, opts.Concurrency)

	pool, err := ants.NewPool(opts.Concurrency)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternalError, err, "failed to create embedding worker pool")
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, b := range batches {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			vectors, err := embedBatchWithRetry(ctx, e, texts, b, opts)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			copy(out[b.start:b.end], vectors)
		})
		if submitErr != nil {
			wg.Done()
			errOnce.Do(func() {
				firstErr = errors.Wrap(errors.ErrInternalError, submitErr, "failed to submit embedding batch")
				cancel()
			})
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func createBatches(total, size int) []batch {
	count := int(math.Ceil(float64(total) / float64(size)))
	batches := make([]batch, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := start + size
		if end > total {
			end = total
		}
		batches = append(batches, batch{index: i, start: start, end: end})
	}
	return batches
}

func embedBatchWithRetry(ctx context.Context, e Embedder, texts []string, b batch, opts BatchOptions) ([][]float32, error) {
	delay := opts.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			g.Log().Warningf(ctx, "Embedding batch %d failed (attempt %d/%d), retrying in %v: %v",
				b.index, attempt, opts.MaxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, errors.Wrapf(errors.ErrEmbeddingFailed, ctx.Err(), "batch %d cancelled", b.index)
			case <-time.After(delay):
			}
			delay *= 2
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}

		vectors, err := embedBatch(ctx, e, texts[b.start:b.end], b.index)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		// 维度不一致之类的错误重试没有意义
		if appErr := errors.GetAppError(err); appErr != nil && !appErr.Code.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Wrapf(errors.ErrEmbeddingFailed, lastErr, "batch %d failed after %d attempts", b.index, opts.MaxRetries+1)
}

func embedBatch(ctx context.Context, e Embedder, texts []string, index int) (vectors [][]float32, err error) {
	defer common.RecoverToError(ctx, "embed-batch", &err)

	raw, err := e.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, errors.Newf(errors.ErrEmbeddingFailed, "batch %d: expected %d vectors, got %d", index, len(texts), len(raw))
	}

	dim := e.Dimension()
	vectors = make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != dim {
			return nil, errors.Newf(errors.ErrModelConfigInvalid,
				"batch %d: model %s returned dimension %d, expected %d", index, e.Model(), len(v), dim)
		}
		vectors[i] = toFloat32(v)
	}
	return vectors, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
