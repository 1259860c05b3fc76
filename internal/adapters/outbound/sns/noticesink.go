// Package sns publishes dashboard notices to an AWS SNS topic.
//
// Each notice is sent as a JSON message with attributes for subscription
// filtering:
//   - kind: info, success, input_error, safety_gate, rejected or reverted
//   - action: the action kind, when the notice belongs to one
//   - market: the market contract address
//
// Throttling and internal SNS errors are retried with exponential backoff.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/stl-lend/internal/domain/entity"
	"github.com/archon-research/stl-lend/internal/ports/outbound"
)

var _ outbound.NoticeSink = (*NoticeSink)(nil)

// SNSPublisher is the subset of the SNS client used by NoticeSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS notice sink.
type Config struct {
	TopicARN string

	// Market is attached to every message as the "market" attribute.
	Market string

	// MaxRetries is the number of retries after the first attempt. Negative disables retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Logger:         slog.Default(),
	}
}

// NoticeSink publishes notices to SNS.
type NoticeSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewNoticeSink creates a new SNS notice sink.
func NewNoticeSink(client SNSPublisher, config Config) (*NoticeSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &NoticeSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-noticesink"),
	}, nil
}

// Publish sends the notice to the topic.
func (s *NoticeSink) Publish(ctx context.Context, n entity.Notice) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errors.New("notice sink is closed")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	attributes := map[string]types.MessageAttributeValue{
		"kind": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(n.Kind)),
		},
	}
	if n.Action != "" {
		attributes["action"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(string(n.Action)),
		}
	}
	if s.config.Market != "" {
		attributes["market"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.config.Market),
		}
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.config.TopicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: attributes,
	}
	return s.publishWithRetry(ctx, input, n)
}

func (s *NoticeSink) publishWithRetry(ctx context.Context, input *sns.PublishInput, n entity.Notice) error {
	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("publish failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"kind", n.Kind,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(2*backoff, s.config.MaxBackoff)
		}

		_, err := s.client.Publish(ctx, input)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return fmt.Errorf("failed to publish notice: %w", err)
		}
	}

	return fmt.Errorf("failed to publish notice after %d retries: %w", s.config.MaxRetries, lastErr)
}

// isRetryableError reports whether SNS may accept the same message later.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var throttled *types.ThrottledException
	if errors.As(err, &throttled) {
		return true
	}
	var internal *types.InternalErrorException
	if errors.As(err, &internal) {
		return true
	}
	var kmsThrottled *types.KMSThrottlingException
	return errors.As(err, &kmsThrottled)
}

// Close stops further publishing.
func (s *NoticeSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS notice sink closed")
	})
	return nil
}
