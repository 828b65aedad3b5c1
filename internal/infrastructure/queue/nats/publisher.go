package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/resilience"
)

const DefaultSubject = "affiliations.predictions"

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Publisher fans export documents and model parses out to a NATS subject.
type Publisher struct {
	conn     conn
	subject  string
	runID    string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	Subject              string
	RunID                string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func Connect(url string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := false
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(
		url,
		nats.Name("preprint-affiliations"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	options.Logger = logger
	return newPublisher(nc, options), nil
}

func newPublisher(c conn, options Options) *Publisher {
	subject := options.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:     c,
		subject:  subject,
		runID:    options.RunID,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}
}

type predictionEvent struct {
	RunID      string                     `json:"run_id,omitempty"`
	ArxivID    string                     `json:"arxiv_id"`
	DOI        string                     `json:"doi"`
	Prediction []domain.AuthorAffiliation `json:"prediction"`
}

type parseEvent struct {
	RunID      string `json:"run_id,omitempty"`
	Source     string `json:"source"`
	Prediction []any  `json:"prediction"`
}

func (p *Publisher) Write(ctx context.Context, doc domain.PredictionDocument) error {
	doc = doc.Normalized()
	body, err := json.Marshal(predictionEvent{
		RunID:      p.runID,
		ArxivID:    doc.ArxivID,
		DOI:        doc.DOI,
		Prediction: doc.Prediction,
	})
	if err != nil {
		return fmt.Errorf("marshal prediction event: %w", err)
	}
	return p.publish(ctx, p.subject, body)
}

// WriteParse publishes on "<subject>.parses".
func (p *Publisher) WriteParse(ctx context.Context, parse domain.AffiliationParse) error {
	body, err := json.Marshal(parseEvent{
		RunID:      p.runID,
		Source:     parse.Source,
		Prediction: parse.Prediction,
	})
	if err != nil {
		return fmt.Errorf("marshal parse event: %w", err)
	}
	return p.publish(ctx, p.subject+".parses", body)
}

func (p *Publisher) publish(ctx context.Context, subject string, body []byte) error {
	call := func(_ context.Context) error {
		if err := p.conn.Publish(subject, body); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(subject, err)
	}
	return nil
}

// Close flushes buffered messages before closing the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.FlushTimeout(5 * time.Second)
	p.conn.Close()
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}
