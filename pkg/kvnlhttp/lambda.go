package kvnlhttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaHandler adapts an http.Handler to API Gateway HTTP API events.
// Binary bodies travel base64-encoded in both directions.
func LambdaHandler(handler http.Handler, logger *slog.Logger) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return func(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handleLambdaRequest(ctx, request, handler, logger)
	}
}

func handleLambdaRequest(ctx context.Context, request events.APIGatewayV2HTTPRequest, handler http.Handler, logger *slog.Logger) (events.APIGatewayV2HTTPResponse, error) {
	body := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			logger.Error("failed to decode request body", "error", err)
			return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid base64 body"}, nil
		}
		body = decoded
	}

	target := request.RawPath
	if request.RawQueryString != "" {
		target += "?" + request.RawQueryString
	}
	req, err := http.NewRequestWithContext(ctx, request.RequestContext.HTTP.Method, target, bytes.NewReader(body))
	if err != nil {
		logger.Error("failed to create request", "error", err)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       "Internal server error",
		}, nil
	}
	for k, v := range request.Headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = int64(len(body))

	rw := &lambdaResponseWriter{headers: make(http.Header)}
	handler.ServeHTTP(rw, req)

	headers := make(map[string]string, len(rw.headers))
	for k, v := range rw.headers {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: rw.status(),
		Headers:    headers,
	}
	if utf8.Valid(rw.body.Bytes()) {
		resp.Body = rw.body.String()
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(rw.body.Bytes())
		resp.IsBase64Encoded = true
	}
	return resp, nil
}

// lambdaResponseWriter implements http.ResponseWriter for Lambda
type lambdaResponseWriter struct {
	headers    http.Header
	body       bytes.Buffer
	statusCode int
}

func (w *lambdaResponseWriter) Header() http.Header {
	return w.headers
}

func (w *lambdaResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *lambdaResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
}

func (w *lambdaResponseWriter) status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}
