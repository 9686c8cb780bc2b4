package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"mailsweep-backend/internal/triage/usecase"
)

// GmailNotification is the payload Gmail publishes to the watch topic.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service consumes Gmail push notifications from Pub/Sub and feeds them to
// the synchronizer. Notifications are deduplicated per mailbox by history id
// since Gmail may publish the same point more than once.
type Service struct {
	pubsubClient *pubsub.Client
	synchronizer *usecase.Synchronizer
	logger       *slog.Logger
	topicName    string
	subName      string

	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

// NewService creates the intake. Subscription name follows the topic-sub
// convention.
func NewService(projectID, topicName, credentialsFile string, synchronizer *usecase.Synchronizer, logger *slog.Logger) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(context.Background(), projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &Service{
		pubsubClient:  client,
		synchronizer:  synchronizer,
		logger:        logger.With("component", "notification"),
		topicName:     topicName,
		subName:       topicName + "-sub",
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start ensures the subscription exists and blocks receiving messages until
// the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting notification intake", "topic", s.topicName, "subscription", s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check topic: %w", err)
		}
		if !topicExists {
			return fmt.Errorf("topic %s does not exist", s.topicName)
		}
		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		s.logger.Info("created subscription", "subscription", s.subName)
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Close releases the Pub/Sub client.
func (s *Service) Close() error {
	return s.pubsubClient.Close()
}

func (s *Service) handleMessage(ctx context.Context, data []byte) {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		s.logger.Warn("unparseable notification dropped", "error", err, "payload", string(data))
		return
	}
	if notification.EmailAddress == "" {
		s.logger.Warn("notification without mailbox dropped", "payload", string(data))
		return
	}

	if s.isDuplicate(notification.EmailAddress, notification.HistoryID) {
		s.logger.Debug("duplicate notification skipped",
			"mailbox", notification.EmailAddress, "history_id", notification.HistoryID)
		return
	}

	result, err := s.synchronizer.ProcessNotification(ctx, notification.EmailAddress, notification.HistoryID, 0)
	if err != nil {
		s.logger.Error("notification processing failed",
			"mailbox", notification.EmailAddress, "history_id", notification.HistoryID, "error", err)
		return
	}
	s.logger.Info("notification processed",
		"mailbox", notification.EmailAddress, "history_id", notification.HistoryID,
		"processed", result.Processed, "skipped", result.Skipped, "errors", result.Errors)
}

func (s *Service) isDuplicate(mailbox string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastHistoryID[mailbox]; ok && historyID <= last {
		return true
	}
	s.lastHistoryID[mailbox] = historyID
	return false
}
