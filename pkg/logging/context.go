package logging

import (
	"context"
)

const (
	QueueNameKey   = "queue"
	MessageIDKey   = "message_id"
	ConsumerKey    = "consumer"
	ProcessNameKey = "process_name"
)

func WithQueueName(ctx context.Context, queue string) context.Context {
	return context.WithValue(ctx, QueueNameKey, queue)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithConsumer(ctx context.Context, consumer string) context.Context {
	return context.WithValue(ctx, ConsumerKey, consumer)
}

func WithProcessName(ctx context.Context, processName string) context.Context {
	return context.WithValue(ctx, ProcessNameKey, processName)
}

func GetQueueName(ctx context.Context) string {
	if queue, ok := ctx.Value(QueueNameKey).(string); ok {
		return queue
	}
	return ""
}

func GetMessageID(ctx context.Context) string {
	if messageID, ok := ctx.Value(MessageIDKey).(string); ok {
		return messageID
	}
	return ""
}

func GetConsumer(ctx context.Context) string {
	if consumer, ok := ctx.Value(ConsumerKey).(string); ok {
		return consumer
	}
	return ""
}

func GetProcessName(ctx context.Context) string {
	if processName, ok := ctx.Value(ProcessNameKey).(string); ok {
		return processName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if queue := GetQueueName(ctx); queue != "" {
		fields = append(fields, "queue", queue)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, "message_id", messageID)
	}

	if consumer := GetConsumer(ctx); consumer != "" {
		fields = append(fields, "consumer", consumer)
	}

	if processName := GetProcessName(ctx); processName != "" {
		fields = append(fields, "process_name", processName)
	}

	return fields
}
