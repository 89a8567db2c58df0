package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Chapsvision-dev/remote-backup/internal/config"
	"github.com/Chapsvision-dev/remote-backup/internal/provider"
	"github.com/Chapsvision-dev/remote-backup/internal/session"
)

const (
	Name  = "s3"
	Scope = "s3.object.readwrite"
)

// AccountName is the session account for an S3 configuration: the bucket.
func AccountName(c config.S3Config) string { return c.Bucket }

// newClientFromConfig builds an S3 client with SDK retries disabled; the
// caller owns retry policy. Static keys win over the default credential chain.
func newClientFromConfig(ctx context.Context, c config.S3Config) (*awss3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
		if c.PathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

func init() {
	provider.Register(Name, []string{Scope}, func(ctx context.Context, cfg any, sess *session.Session) (provider.Adapter, error) {
		c, ok := cfg.(config.S3Config)
		if !ok {
			return nil, provider.Errorf(provider.InvalidArgument, "open", Name, "invalid config type %T", cfg)
		}
		if c.Bucket == "" {
			return nil, provider.Errorf(provider.InvalidArgument, "open", Name, "bucket is required")
		}
		if sess == nil || sess.Account != AccountName(c) {
			return nil, provider.Errorf(provider.Unauthenticated, "open", Name, "session is not bound to bucket %s", c.Bucket)
		}
		client, err := newClientFromConfig(ctx, c)
		if err != nil {
			return nil, provider.E(provider.Fatal, "open", Name, err)
		}
		return newAdapter(client, c.Bucket), nil
	})
}
