// Package notify publishes a run-completion message so downstream consumers
// (crawlers, report jobs) can react to fresh partitions without polling the
// catalog.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"ecommetl/internal/catalog"
	"ecommetl/internal/config"
)

// EventRunCompleted is the message type attribute of every published message.
const EventRunCompleted = "job_run_completed"

// RunCompleted is the JSON body of the completion message.
type RunCompleted struct {
	Event      string    `json:"event"`
	RunID      string    `json:"run_id"`
	Job        string    `json:"job"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Table      string    `json:"table"`
	Location   string    `json:"location,omitempty"`
	Partitions []string  `json:"partitions,omitempty"`
	Read       int64     `json:"rows_read"`
	Written    int64     `json:"rows_written"`
	Rejected   int64     `json:"rows_rejected"`
	Nulled     int64     `json:"rows_nulled"`
	Deduped    int64     `json:"rows_deduped"`
	ErrorsPath string    `json:"errors_path,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewRunCompleted fills the message from a finished run ledger entry.
func NewRunCompleted(r catalog.Run, table, location string, partitions []string, errorsPath string) RunCompleted {
	return RunCompleted{
		Event:      EventRunCompleted,
		RunID:      r.ID,
		Job:        r.Job,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Table:      table,
		Location:   location,
		Partitions: partitions,
		Read:       r.Read,
		Written:    r.Written,
		Rejected:   r.Rejected,
		Nulled:     r.Nulled,
		Deduped:    r.Deduped,
		ErrorsPath: errorsPath,
		Error:      r.Error,
	}
}

// Publisher sends completion messages.
type Publisher interface {
	Publish(ctx context.Context, msg RunCompleted) error
}

// Nop discards messages; used when no queue is configured.
type Nop struct{}

func (Nop) Publish(context.Context, RunCompleted) error { return nil }

// SendAPI is the subset of *sqs.Client the publisher uses.
type SendAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS publishes to one queue.
type SQS struct {
	api      SendAPI
	queueURL string
	log      *zap.Logger
}

// New returns a Publisher for cfg: Nop when no queue URL is set, otherwise
// an SQS publisher.
func New(ctx context.Context, cfg config.Notify, log *zap.Logger) (Publisher, error) {
	if cfg.SQSQueueURL == "" {
		return Nop{}, nil
	}
	api, err := NewClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return NewSQS(api, cfg.SQSQueueURL, log), nil
}

// NewSQS wraps an SQS API.
func NewSQS(api SendAPI, queueURL string, log *zap.Logger) *SQS {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQS{api: api, queueURL: queueURL, log: log}
}

// NewClient creates an SQS client. With an Endpoint set (ElasticMQ,
// LocalStack) it uses dummy static credentials.
func NewClient(ctx context.Context, cfg config.Notify, log *zap.Logger) (*sqs.Client, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))
	}

	var clientOpts []func(*sqs.Options)
	if cfg.Endpoint != "" {
		log.Info("configuring SQS for a local endpoint", zap.String("endpoint", cfg.Endpoint))
		configOpts = append(configOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, clientOpts...), nil
}

// Publish sends msg as a JSON body with Event, Job and Status attributes.
func (s *SQS) Publish(ctx context.Context, msg RunCompleted) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal run message: %w", err)
	}

	_, err = s.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Event":  {DataType: aws.String("String"), StringValue: aws.String(msg.Event)},
			"Job":    {DataType: aws.String("String"), StringValue: aws.String(msg.Job)},
			"Status": {DataType: aws.String("String"), StringValue: aws.String(msg.Status)},
		},
	})
	if err != nil {
		s.log.Error("failed to send run message to SQS",
			zap.String("run_id", msg.RunID),
			zap.Error(err))
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	s.log.Info("run message published",
		zap.String("run_id", msg.RunID),
		zap.String("status", msg.Status))
	return nil
}
