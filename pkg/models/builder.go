package models

import "time"

type EnvelopeBuilder struct {
	envelope *Envelope
}

func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: &Envelope{},
	}
}

func (b *EnvelopeBuilder) WithQueueName(queue string) *EnvelopeBuilder {
	b.envelope.QueueName = queue
	return b
}

func (b *EnvelopeBuilder) WithOperation(operation string) *EnvelopeBuilder {
	b.envelope.Operation = operation
	return b
}

func (b *EnvelopeBuilder) WithModel(model string) *EnvelopeBuilder {
	b.envelope.Model = model
	return b
}

func (b *EnvelopeBuilder) WithData(data interface{}) *EnvelopeBuilder {
	b.envelope.Data = data
	return b
}

func (b *EnvelopeBuilder) WithDelayUntil(due time.Time) *EnvelopeBuilder {
	b.envelope.DelayUntil = due.Format(DelayUntilLayout)
	return b
}

func (b *EnvelopeBuilder) WithRetries(retries int) *EnvelopeBuilder {
	b.envelope.Retries = retries
	return b
}

func (b *EnvelopeBuilder) Build() *Envelope {
	return b.envelope
}
