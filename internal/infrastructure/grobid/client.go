// Package grobid converts PDFs to TEI XML through a Grobid server.
package grobid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/resilience"
)

const (
	DefaultEndpoint = "http://localhost:8080/api/processHeaderDocument"
	DefaultTimeout  = 300 * time.Second

	inputField = "input"
)

type Options struct {
	Timeout            time.Duration
	RateLimitRPS       float64
	HTTPClient         *http.Client
	Logger             *slog.Logger
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	executor   *resilience.Executor
}

func New(endpoint string, opts Options) *Client {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := rate.Inf
	if opts.RateLimitRPS > 0 {
		limit = rate.Limit(opts.RateLimitRPS)
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     opts.Logger,
		executor:   opts.ResilienceExecutor,
	}
}

// ConvertPDF uploads one PDF as the multipart field "input" and returns the TEI
// document from a 2xx response.
func (c *Client) ConvertPDF(ctx context.Context, filename string, pdf io.Reader) (string, error) {
	raw, err := io.ReadAll(pdf)
	if err != nil {
		return "", fmt.Errorf("read pdf %s: %w", filename, err)
	}

	var tei string
	call := func(callCtx context.Context) error {
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		out, err := c.post(callCtx, filename, raw)
		if err != nil {
			return err
		}
		tei = out
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "grobid.process", call, classifyGrobidError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("grobid.process", err)
	}
	return tei, nil
}

func (c *Client) post(ctx context.Context, filename string, pdf []byte) (string, error) {
	body, contentType, err := multipartBody(filename, pdf)
	if err != nil {
		return "", fmt.Errorf("build grobid request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create grobid request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("grobid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		statusErr := &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(msg)),
		}
		c.logger.Warn("grobid_error_response", "file", filename, "status_code", resp.StatusCode, "body", statusErr.Body)
		return "", statusErr
	}

	tei, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read grobid response: %w", err)
	}
	return string(tei), nil
}

func multipartBody(filename string, pdf []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, inputField, filename))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "grobid status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("grobid status: %s", e.Status)
	}
	return fmt.Sprintf("grobid status: %s: %s", e.Status, e.Body)
}

func classifyGrobidError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		retryable := resilience.HTTPStatusRetryable(statusErr.StatusCode)
		return resilience.ErrorClassification{
			Retryable:     retryable,
			RecordFailure: retryable,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyGrobidError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
