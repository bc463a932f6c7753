package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"smokealert/internal/logger"
	"smokealert/internal/models"
)

const defaultTopicTimeout = 10 * time.Second

// TopicProvisioner creates the alert topic when a notification channel is first used.
type TopicProvisioner struct {
	Brokers           []string
	Topic             string
	Partitions        int
	ReplicationFactor int
	// Timeout bounds the whole exchange, including reads on a broker that never answers
	Timeout time.Duration
}

// EnsureChannel creates the topic backing ch. An existing topic is not an error.
func (t *TopicProvisioner) EnsureChannel(ctx context.Context, ch models.NotificationChannel) error {
	if len(t.Brokers) == 0 {
		return errors.New("at least one broker is required")
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTopicTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	conn, err := kafka.DialContext(ctx, "tcp", t.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(deadline)

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrl.Close()
	ctrl.SetDeadline(deadline)

	err = ctrl.CreateTopics(topicConfig(t.Topic, t.Partitions, t.ReplicationFactor))
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", t.Topic, err)
	}

	log := logger.WithComponent("kafka_topics")
	log.Info().
		Str("topic", t.Topic).
		Str("channel_id", ch.ID).
		Bool("existed", err != nil).
		Msg("alert topic ready")
	return nil
}

func topicConfig(topic string, partitions, replication int) kafka.TopicConfig {
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}
	return kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	}
}
