package llm

import (
	"context"
	"errors"
	"strconv"

	openai "github.com/sashabaranov/go-openai"
)

// HTTPStatus extracts the provider's HTTP status code from err, if any.
func HTTPStatus(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, true
	}
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) && withStatus.HTTPStatus() > 0 {
		return withStatus.HTTPStatus(), true
	}
	return 0, false
}

// ErrorCode labels err for the provider error counter.
func ErrorCode(err error) string {
	if code, ok := HTTPStatus(err); ok {
		return strconv.Itoa(code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}
