package listener

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/miere/malka/internal/config"
	"github.com/miere/malka/internal/errs"
	"github.com/miere/malka/internal/metrics"
	"github.com/miere/malka/internal/record"
	"github.com/rs/zerolog"
)

// LambdaClient is the subset of the AWS Lambda SDK client this package
// depends on, narrowed for testability with a fake.
type LambdaClient interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaListener invokes a single named AWS Lambda function synchronously
// with the batch's canonical JSON as the invocation payload, matching
// original_source/malka-consumer/src/aws/lambda_publisher.rs.
type LambdaListener struct {
	client   LambdaClient
	target   config.FunctionTarget
	logger   zerolog.Logger
}

// NewLambdaListener resolves AWS credentials and region the standard SDK
// way (environment, shared config, IAM role) via aws-sdk-go-v2/config,
// optionally pointed at a custom endpoint for local development.
func NewLambdaListener(ctx context.Context, cfg *config.Config, target config.FunctionTarget, logger zerolog.Logger) (*LambdaListener, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.AWSRegion))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := lambda.NewFromConfig(awsCfg, func(o *lambda.Options) {
		if cfg.AWSLambdaEndpoint != "" {
			o.BaseEndpoint = &cfg.AWSLambdaEndpoint
		}
	})

	return &LambdaListener{
		client: client,
		target: target,
		logger: logger.With().Str("component", "listener").Str("function", target.Name).Logger(),
	}, nil
}

// Consume serializes the batch and invokes the target function
// synchronously. A transport-level Invoke error (network, auth,
// throttling, ResourceNotFoundException) is Failed; a non-nil
// FunctionError on an otherwise-successful call is logged and treated as
// Succeeded, per §4.3's rationale that the provider owns retry/DLQ.
func (l *LambdaListener) Consume(ctx context.Context, batch []record.Record) Outcome {
	payload, err := record.MarshalBatch(batch)
	if err != nil {
		return Failed(fmt.Sprintf("marshal batch: %v", err))
	}

	input := &lambda.InvokeInput{
		FunctionName:   &l.target.Name,
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	}
	if l.target.Qualifier != "" {
		input.Qualifier = &l.target.Qualifier
	}

	start := time.Now()
	out, err := l.client.Invoke(ctx, input)
	metrics.DispatchDuration.WithLabelValues(l.target.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		dispatchErr := fmt.Errorf("%w: invoke %s: %v", errs.ErrDispatchFailed, l.target.Name, err)
		return Failed(dispatchErr.Error())
	}

	if out.FunctionError != nil {
		metrics.HandlerErrors.WithLabelValues(l.target.Name).Inc()
		handlerErr := fmt.Errorf("%w: %s", errs.ErrHandlerError, *out.FunctionError)
		l.logger.Error().
			Err(handlerErr).
			Bytes("payload", out.Payload).
			Msg("remote function reported a handler error; committing anyway (provider owns retry/DLQ)")
	}

	return Succeeded()
}
