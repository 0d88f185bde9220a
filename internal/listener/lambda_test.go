package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/miere/malka/internal/config"
	"github.com/miere/malka/internal/record"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLambdaClient struct {
	out *lambda.InvokeOutput
	err error
}

func (f *fakeLambdaClient) Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	return f.out, f.err
}

func newBatch(t *testing.T) []record.Record {
	t.Helper()
	r, err := record.New([]byte("k"), []byte("v"))
	require.NoError(t, err)
	return []record.Record{r}
}

func TestConsumeTransportFailureIsFailed(t *testing.T) {
	l := &LambdaListener{
		client: &fakeLambdaClient{err: errors.New("boom")},
		target: config.FunctionTarget{Name: "fn"},
		logger: zerolog.Nop(),
	}

	outcome := l.Consume(context.Background(), newBatch(t))
	reason, failed := outcome.Failed()
	assert.True(t, failed)
	assert.Contains(t, reason, "boom")
}

func TestConsumeHandlerErrorIsSucceeded(t *testing.T) {
	msg := "panic: division by zero"
	l := &LambdaListener{
		client: &fakeLambdaClient{out: &lambda.InvokeOutput{FunctionError: &msg}},
		target: config.FunctionTarget{Name: "fn"},
		logger: zerolog.Nop(),
	}

	outcome := l.Consume(context.Background(), newBatch(t))
	_, failed := outcome.Failed()
	assert.False(t, failed)
}

func TestConsumeSuccessIsSucceeded(t *testing.T) {
	l := &LambdaListener{
		client: &fakeLambdaClient{out: &lambda.InvokeOutput{}},
		target: config.FunctionTarget{Name: "fn"},
		logger: zerolog.Nop(),
	}

	outcome := l.Consume(context.Background(), newBatch(t))
	_, failed := outcome.Failed()
	assert.False(t, failed)
}
