package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	headerAPIKey        = "X-CAP-API-KEY"
	headerSecurityToken = "X-SECURITY-TOKEN"
	headerCST           = "CST"
)

// Tokens: пара токенов, выданная при логине. Нужна на каждом запросе после него.
type Tokens struct {
	SecurityToken string
	CST           string
}

func (t Tokens) apply(h http.Header) {
	h.Set(headerSecurityToken, t.SecurityToken)
	h.Set(headerCST, t.CST)
}

type call struct {
	op     string
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

type reply struct {
	status int
	header http.Header
	body   []byte
}

// transport: общий для SessionManager и PriceFetcher HTTP-слой.
type transport struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// do выполняет запрос. Сетевые сбои => *TransportError, не-2xx => *APIError
// (reply при этом тоже возвращается, статус нужен Open).
func (t *transport) do(ctx context.Context, c call) (*reply, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "capital."+c.op)
	defer span.Finish()
	ext.SpanKindRPCClient.Set(span)
	ext.HTTPMethod.Set(span, c.method)
	ext.HTTPUrl.Set(span, c.path)

	fullURL := t.baseURL + c.path
	if len(c.query) > 0 {
		fullURL += "?" + c.query.Encode()
	}

	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, fullURL, body)
	if err != nil {
		ext.Error.Set(span, true)
		return nil, &TransportError{Op: c.op, Err: errors.Wrap(err, "build request")}
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.http.Do(req)
	if err != nil {
		ext.Error.Set(span, true)
		return nil, &TransportError{Op: c.op, Err: errors.Wrap(err, "do request")}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		ext.Error.Set(span, true)
		return nil, &TransportError{Op: c.op, Err: errors.Wrap(err, "read response")}
	}
	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))

	r := &reply{status: resp.StatusCode, header: resp.Header, body: data}
	if resp.StatusCode/100 != 2 {
		ext.Error.Set(span, true)
		apiErr := &APIError{Op: c.op, StatusCode: resp.StatusCode, Body: data}
		var payload struct {
			ErrorCode string `json:"errorCode"`
		}
		if sonic.Unmarshal(data, &payload) == nil {
			apiErr.ErrorCode = payload.ErrorCode
		}
		t.logger.Debug("capital request failed",
			zap.String("op", c.op),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", apiErr.ErrorCode),
		)
		return r, apiErr
	}

	return r, nil
}

// decode разбирает тело 2xx-ответа; мусор в теле: это *APIError.
func decode(op string, r *reply, v any) error {
	if err := sonic.Unmarshal(r.body, v); err != nil {
		return &APIError{Op: op, StatusCode: r.status, Body: r.body, Err: errors.Wrap(err, "decode")}
	}
	return nil
}
