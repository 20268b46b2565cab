// Package lambdaurl serves an http.Handler behind an AWS Lambda function URL.
package lambdaurl

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// HandlerFunc is the signature lambda.Start expects for function URL events.
type HandlerFunc func(ctx context.Context, req events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error)

// Adapt converts each function URL event into an *http.Request, runs h and
// returns the recorded response.
func Adapt(h http.Handler) HandlerFunc {
	return func(ctx context.Context, req events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
		r, err := toRequest(ctx, req)
		if err != nil {
			return events.LambdaFunctionURLResponse{
				StatusCode: http.StatusBadRequest,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"error":"malformed request","code":"invalid_input"}`,
			}, nil
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		headers := make(map[string]string, len(rec.Header()))
		var cookies []string
		for k, v := range rec.Header() {
			if k == "Set-Cookie" {
				cookies = append(cookies, v...)
				continue
			}
			headers[k] = strings.Join(v, ",")
		}
		return events.LambdaFunctionURLResponse{
			StatusCode: rec.Code,
			Headers:    headers,
			Body:       rec.Body.String(),
			Cookies:    cookies,
		}, nil
	}
}

func toRequest(ctx context.Context, req events.LambdaFunctionURLRequest) (*http.Request, error) {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		body = string(raw)
	}

	u := url.URL{Path: req.RawPath, RawQuery: req.RawQueryString}
	if u.Path == "" {
		u.Path = req.RequestContext.HTTP.Path
	}
	r, err := http.NewRequestWithContext(ctx, req.RequestContext.HTTP.Method, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}
	if len(req.Cookies) > 0 {
		r.Header.Set("Cookie", strings.Join(req.Cookies, "; "))
	}
	r.RemoteAddr = req.RequestContext.HTTP.SourceIP
	r.Host = req.RequestContext.DomainName
	return r, nil
}
