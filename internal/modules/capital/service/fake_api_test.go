package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"capital_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testCST   = "abc"
	testToken = "xyz"
	testKey   = "api-key"
)

// fakeAPI: мок REST API capital.com с ручками для сбоев.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	loginStatus atomic.Int32
	loginNoHdr  atomic.Bool
	pingStatus  atomic.Int32
	pingBody    atomic.Value // string
	// override подменяет весь роутер, если задан
	override atomic.Pointer[http.HandlerFunc]

	logins  atomic.Int32
	logouts atomic.Int32
	pings   atomic.Int32

	mu         sync.Mutex
	loginBody  map[string]string
	priceQuery []url.Values
	priceEpics []string
	// pageSizes[i]: сколько точек отдать на i-й запрос цен
	pageSizes []int
	// stallPages: отдавать все точки с одной и той же меткой from
	stallPages bool
	step       time.Duration
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{t: t, step: time.Minute}
	f.loginStatus.Store(http.StatusOK)
	f.pingStatus.Store(http.StatusOK)
	f.pingBody.Store(`{"status":"OK"}`)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/session", f.handleSession)
	mux.HandleFunc("/api/v1/ping", f.handlePing)
	mux.HandleFunc("/api/v1/prices/", f.handlePrices)
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := f.override.Load(); h != nil {
			(*h)(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	return r.Header.Get("CST") == testCST && r.Header.Get("X-SECURITY-TOKEN") == testToken
}

func (f *fakeAPI) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		f.logins.Add(1)
		body, _ := io.ReadAll(r.Body)
		req := map[string]string{}
		_ = sonic.Unmarshal(body, &req)
		req["_apikey"] = r.Header.Get("X-CAP-API-KEY")
		req["_content_type"] = r.Header.Get("Content-Type")
		f.mu.Lock()
		f.loginBody = req
		f.mu.Unlock()

		status := int(f.loginStatus.Load())
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"errorCode":"error.invalid.details"}`))
			return
		}
		if !f.loginNoHdr.Load() {
			w.Header().Set("CST", testCST)
			w.Header().Set("X-SECURITY-TOKEN", testToken)
		}
		_, _ = w.Write([]byte(`{"accountType":"CFD","currentAccountId":"1"}`))
	case http.MethodDelete:
		f.logouts.Add(1)
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"status":"SUCCESS"}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeAPI) handlePing(w http.ResponseWriter, r *http.Request) {
	f.pings.Add(1)
	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	status := int(f.pingStatus.Load())
	w.WriteHeader(status)
	if status == http.StatusOK {
		_, _ = w.Write([]byte(f.pingBody.Load().(string)))
	}
}

func (f *fakeAPI) handlePrices(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()

	f.mu.Lock()
	idx := len(f.priceQuery)
	f.priceQuery = append(f.priceQuery, q)
	f.priceEpics = append(f.priceEpics, r.URL.Path)
	size := 0
	if idx < len(f.pageSizes) {
		size = f.pageSizes[idx]
	}
	stall := f.stallPages
	step := f.step
	f.mu.Unlock()

	from, err := time.Parse(models.TimestampLayout, q.Get("from"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode":"error.invalid.from"}`))
		return
	}
	if stall {
		step = 0
	}
	_, _ = w.Write(pricesPayload(from, size, step))
}

func (f *fakeAPI) setHandler(h http.HandlerFunc) {
	f.override.Store(&h)
}

func (f *fakeAPI) queries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.priceQuery))
	copy(out, f.priceQuery)
	return out
}

func (f *fakeAPI) setPages(sizes ...int) {
	f.mu.Lock()
	f.pageSizes = sizes
	f.mu.Unlock()
}

// pricesPayload: n баров подряд, начиная с from включительно.
func pricesPayload(from time.Time, n int, step time.Duration) []byte {
	type price struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	}
	type point struct {
		SnapshotTime     string  `json:"snapshotTime"`
		SnapshotTimeUTC  string  `json:"snapshotTimeUTC"`
		OpenPrice        price   `json:"openPrice"`
		ClosePrice       price   `json:"closePrice"`
		HighPrice        price   `json:"highPrice"`
		LowPrice         price   `json:"lowPrice"`
		LastTradedVolume float64 `json:"lastTradedVolume"`
	}
	out := struct {
		Prices         []point `json:"prices"`
		InstrumentType string  `json:"instrumentType"`
	}{Prices: make([]point, 0, n), InstrumentType: "CURRENCIES"}

	for i := 0; i < n; i++ {
		ts := from.Add(time.Duration(i) * step)
		v := 1.1 + float64(i)/10000
		out.Prices = append(out.Prices, point{
			SnapshotTime:     ts.Format(models.TimestampLayout),
			SnapshotTimeUTC:  ts.Format(models.TimestampLayout),
			OpenPrice:        price{Bid: v, Ask: v + 0.0002},
			ClosePrice:       price{Bid: v, Ask: v + 0.0002},
			HighPrice:        price{Bid: v + 0.001, Ask: v + 0.0012},
			LowPrice:         price{Bid: v - 0.001, Ask: v - 0.0008},
			LastTradedVolume: float64(i),
		})
	}
	b, err := sonic.Marshal(out)
	if err != nil {
		panic(fmt.Sprintf("marshal prices: %v", err))
	}
	return b
}

// recordingSink копит события сессии.
type recordingSink struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (s *recordingSink) SessionEvent(_ context.Context, ev models.SessionEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) kinds() []models.SessionEventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SessionEventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestClient(t *testing.T, api *fakeAPI, mut func(*Options)) *Client {
	t.Helper()
	o := Options{
		BaseURL:     api.srv.URL,
		Environment: "test",
		Credentials: Credentials{Identifier: "trader@example.com", Password: "s3cret", APIKey: testKey},
		HTTPClient:  api.srv.Client(),
		// keepalive по умолчанию выключен, чтобы не мешать счётчикам
		PingInterval: time.Hour,
		Keepalive:    false,
		MaxPages:     50,
		Logger:       zap.NewNop(),
	}
	if mut != nil {
		mut(&o)
	}
	c := New(o)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func openClient(t *testing.T, c *Client) {
	t.Helper()
	_, err := c.Open(context.Background())
	require.NoError(t, err)
}
