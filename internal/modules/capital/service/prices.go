package service

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"capital_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PageSize: максимум точек, который API отдаёт за один запрос.
const PageSize = 1000

var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)

// TokenSource: откуда PriceFetcher берёт токены текущей сессии.
type TokenSource interface {
	Tokens() (Tokens, bool)
}

// PriceFetcher собирает историческую серию постранично. Состояние сессии не меняет,
// поэтому параллельные вызовы не требуют синхронизации между собой.
type PriceFetcher struct {
	tr     *transport
	tokens TokenSource
	logger *zap.Logger

	maxPages int
	timeout  time.Duration
}

func newPriceFetcher(tr *transport, tokens TokenSource, maxPages int, timeout time.Duration, logger *zap.Logger) *PriceFetcher {
	return &PriceFetcher{
		tr:       tr,
		tokens:   tokens,
		logger:   logger,
		maxPages: maxPages,
		timeout:  timeout,
	}
}

// ParseResolution: проверка точным совпадением, а не поиском подстроки.
func ParseResolution(s string) (models.Resolution, error) {
	r := models.Resolution(s)
	if !r.Valid() {
		names := make([]string, 0, len(models.Resolutions()))
		for _, v := range models.Resolutions() {
			names = append(names, v.String())
		}
		return "", &ArgumentError{
			Name:   "resolution",
			Value:  s,
			Reason: "must be one of " + strings.Join(names, ", "),
		}
	}
	return r, nil
}

// ParseTimestamp принимает строго YYYY-MM-DDTHH:MM:SS.
func ParseTimestamp(name, s string) (time.Time, error) {
	if !timestampRe.MatchString(s) {
		return time.Time{}, &ArgumentError{Name: name, Value: s, Reason: "want format YYYY-MM-DDTHH:MM:SS"}
	}
	t, err := time.Parse(models.TimestampLayout, s)
	if err != nil {
		return time.Time{}, &ArgumentError{Name: name, Value: s, Reason: err.Error()}
	}
	return t, nil
}

// GetHistoricalPrices отдаёт серию [start, end] по возрастанию времени без дублей.
// end == "": до текущего момента. Аргументы проверяются до любого сетевого вызова.
func (f *PriceFetcher) GetHistoricalPrices(ctx context.Context, epic, resolution, start, end string) (models.PriceSeries, error) {
	if strings.TrimSpace(epic) == "" {
		return nil, &ArgumentError{Name: "instrument", Value: epic, Reason: "must not be empty"}
	}
	res, err := ParseResolution(resolution)
	if err != nil {
		return nil, err
	}
	cursorTime, err := ParseTimestamp("start", start)
	if err != nil {
		return nil, err
	}
	if end != "" {
		endTime, err := ParseTimestamp("end", end)
		if err != nil {
			return nil, err
		}
		if endTime.Before(cursorTime) {
			return nil, &ArgumentError{Name: "end", Value: end, Reason: "is before start"}
		}
	}

	// один снимок токенов на весь вызов
	tokens, ok := f.tokens.Tokens()
	if !ok {
		return nil, ErrNotConnected
	}

	bounded := false
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
		bounded = true
	}

	var (
		all    []models.PricePoint
		cursor = start
		pages  int
	)
	for {
		if pages >= f.maxPages {
			return nil, &PaginationLimitError{Pages: pages, Cursor: cursor, Err: ErrMaxPages}
		}
		if err := ctx.Err(); err != nil {
			return nil, f.ctxError(bounded, pages, cursor, err)
		}

		points, err := f.fetchPage(ctx, tokens, epic, res, cursor, end)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && bounded {
				return nil, f.ctxError(bounded, pages, cursor, ctxErr)
			}
			return nil, err
		}
		pages++
		all = append(all, points...)

		if len(points) < PageSize {
			break
		}

		// страница полная: следующая начинается с метки последней точки, включительно
		last := points[len(points)-1].Time
		if !last.After(cursorTime) {
			return nil, &PaginationLimitError{Pages: pages, Cursor: cursor, Err: ErrCursorStalled}
		}
		cursorTime = last
		cursor = last.Format(models.TimestampLayout)
	}

	series := assemble(all)
	f.logger.Debug("historical prices fetched",
		zap.String("epic", epic),
		zap.String("resolution", res.String()),
		zap.Int("pages", pages),
		zap.Int("raw_points", len(all)),
		zap.Int("points", len(series)),
	)
	return series, nil
}

func (f *PriceFetcher) ctxError(bounded bool, pages int, cursor string, err error) error {
	if bounded && errors.Is(err, context.DeadlineExceeded) {
		return &PaginationLimitError{Pages: pages, Cursor: cursor, Err: err}
	}
	return &TransportError{Op: "prices", Err: err}
}

type pricesResponse struct {
	Prices []models.PricePoint `json:"prices"`
}

func (f *PriceFetcher) fetchPage(ctx context.Context, tokens Tokens, epic string, res models.Resolution, from, to string) ([]models.PricePoint, error) {
	query := url.Values{}
	query.Set("resolution", res.String())
	query.Set("max", strconv.Itoa(PageSize))
	query.Set("from", from)
	if to != "" {
		query.Set("to", to)
	}

	h := http.Header{}
	tokens.apply(h)

	r, err := f.tr.do(ctx, call{
		op:     "prices",
		method: http.MethodGet,
		path:   "/api/v1/prices/" + url.PathEscape(epic),
		query:  query,
		header: h,
	})
	if err != nil {
		return nil, err
	}

	var page pricesResponse
	if err := decode("prices", r, &page); err != nil {
		return nil, err
	}
	for i := range page.Prices {
		t, err := time.Parse(models.TimestampLayout, page.Prices[i].SnapshotTime)
		if err != nil {
			return nil, &APIError{
				Op:         "prices",
				StatusCode: r.status,
				Body:       r.body,
				Err:        errors.Wrapf(err, "snapshotTime of point %d", i),
			}
		}
		page.Prices[i].Time = t
	}
	return page.Prices, nil
}

// assemble упорядочивает точки по времени и выкидывает повторы одной метки.
// Повтор возникает на стыке страниц: курсор включительный. Остаётся первая точка.
func assemble(points []models.PricePoint) models.PriceSeries {
	if len(points) == 0 {
		return models.PriceSeries{}
	}
	slices.SortStableFunc(points, func(a, b models.PricePoint) int {
		return a.Time.Compare(b.Time)
	})

	out := make(models.PriceSeries, 0, len(points))
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			continue
		}
		out = append(out, p)
	}
	return out
}
