package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elevenstudents/specsync/internal/progress"
)

type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	return target == progress.ErrRemoteUnavailable
}

// TokenProvider supplies the bearer token for remote requests, letting the
// identity collaborator refresh credentials between calls.
type TokenProvider func(ctx context.Context) (string, error)

type HTTPStoreOptions struct {
	BaseURL       string
	Token         string
	TokenProvider TokenProvider
	HTTPClient    *http.Client
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

// HTTPStore talks to a remote document service holding one progress document
// per user under /v1/users-progress/{uid}. Transient failures (429, 5xx) are
// retried with bounded exponential backoff, honouring Retry-After.
type HTTPStore struct {
	baseURL       string
	tokenProvider TokenProvider
	httpClient    *http.Client
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewHTTPStore(opts HTTPStoreOptions) *HTTPStore {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	tokenProvider := opts.TokenProvider
	if tokenProvider == nil {
		token := strings.TrimSpace(opts.Token)
		tokenProvider = func(context.Context) (string, error) { return token, nil }
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HTTPStore{
		baseURL:       baseURL,
		tokenProvider: tokenProvider,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		baseDelay:     baseDelay,
		maxDelay:      maxDelay,
	}
}

func (s *HTTPStore) LoadDocument(ctx context.Context, uid string) (progress.RemoteDocument, bool, error) {
	var doc progress.RemoteDocument
	err := s.doJSON(ctx, http.MethodGet, "/v1/users-progress/"+url.PathEscape(uid), nil, &doc)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return progress.RemoteDocument{}, false, nil
		}
		return progress.RemoteDocument{}, false, err
	}
	return doc, true, nil
}

func (s *HTTPStore) SaveSubject(ctx context.Context, uid, subjectID string, snapshot progress.SubjectState) error {
	path := fmt.Sprintf("/v1/users-progress/%s/subjects/%s", url.PathEscape(uid), url.PathEscape(subjectID))
	return s.doJSON(ctx, http.MethodPut, path, snapshot, nil)
}

func (s *HTTPStore) TouchLastAccess(ctx context.Context, uid string) error {
	return s.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/users/%s/last-access", url.PathEscape(uid)), nil, nil)
}

func (s *HTTPStore) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	token, err := s.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	correlationID := "progress_" + uuid.NewString()

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("X-Correlation-Id", correlationID)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < s.maxRetries {
				if waitErr := sleepContext(ctx, s.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < s.maxRetries {
			if waitErr := sleepContext(ctx, s.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		message := errPayload.Message
		if message == "" {
			message = strings.TrimSpace(string(payload))
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    message,
		}
	}
}

func (s *HTTPStore) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > s.maxDelay {
			return s.maxDelay
		}
		return retryAfter
	}
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	if delay > s.maxDelay {
		return s.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
