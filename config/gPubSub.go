package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// RunEventMessage is published after a write-mode run commits or rolls back.
type RunEventMessage struct {
	RunId              string    `json:"run_id"`
	Command            string    `json:"command"`
	Mode               string    `json:"mode"`
	Status             string    `json:"status"`
	BackupName         string    `json:"backup_name"`
	Applied            int       `json:"applied"`
	StatementsExecuted int       `json:"statements_executed"`
	FinishedAt         time.Time `json:"finished_at"`
	CorrelationId      string    `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// getPubSubClient uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	return c, nil
}

// RunEventsEnabled reports whether RECON_PUBSUB_TOPIC is configured.
func RunEventsEnabled() bool {
	return os.Getenv("RECON_PUBSUB_TOPIC") != ""
}

// PublishRunEvent publishes msg to RECON_PUBSUB_TOPIC and returns the server-assigned message id.
func PublishRunEvent(ctx context.Context, msg RunEventMessage) (string, error) {
	topicName := os.Getenv("RECON_PUBSUB_TOPIC")
	if topicName == "" {
		return "", errors.New("RECON_PUBSUB_TOPIC is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	t := client.Topic(topicName)
	defer t.Stop()
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"run_id": msg.RunId,
			"status": msg.Status,
		},
	})
	return result.Get(ctx)
}

func ClosePubSub() error {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient == nil {
		return nil
	}
	err := pubsubClient.Close()
	pubsubClient = nil
	return err
}
