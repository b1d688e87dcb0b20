package metrics

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/aws"
)

// Metric names.
const (
	AdmissionDenied   = "AdmissionDenied"
	LimiterDegraded   = "RateLimiterDegraded"
	SessionsSubmitted = "SyncSessionsSubmitted"
	SessionsFinished  = "SyncSessionsFinished"
	ItemsFailed       = "SyncItemsFailed"
	CascadeRecords    = "CascadeRecordsMoved"
)

// Recorder counts events. Implementations must not fail the caller.
type Recorder interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Count(context.Context, string, float64, map[string]string) {}

// CloudWatch publishes counts with PutMetricData.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	timeout   time.Duration
	logger    *zerolog.Logger
}

// NewCloudWatch returns a CloudWatch recorder publishing into namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zerolog.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		timeout:   time.Second,
		logger:    logger,
	}
}

// Count publishes one datapoint. Errors are logged and dropped.
func (c *CloudWatch) Count(ctx context.Context, name string, value float64, dims map[string]string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	dimensions := make([]cwtypes.Dimension, 0, len(dims))
	for k, v := range dims {
		dimensions = append(dimensions, cwtypes.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(v)})
	}

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(value),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dimensions,
		}},
	})
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("metric", name).
			Msg("can't publish metric")
	}
}
