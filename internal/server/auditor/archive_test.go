package auditor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubAWS(t *testing.T, put func(in *s3.PutObjectInput) error) {
	t.Helper()
	origLoad, origNew, origPut := loadDefaultAWSConfig, newS3ClientFromConfig, putObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
		putObject = origPut
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			_ = fn(&lo)
		}
		return aws.Config{Region: lo.Region}, nil
	}
	putObject = func(_ *s3.Client, _ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return &s3.PutObjectOutput{}, put(in)
	}
}

func TestS3Archiver_Archive(t *testing.T) {
	var got *s3.PutObjectInput
	var body []byte
	stubAWS(t, func(in *s3.PutObjectInput) error {
		got = in
		var err error
		body, err = io.ReadAll(in.Body)
		return err
	})

	a, err := NewS3Archiver(context.Background(), S3Config{
		Region: "us-east-1", AccessKey: "k", SecretKey: "s",
		BaseEndpoint: "http://127.0.0.1:9000", Bucket: "audits",
	})
	require.NoError(t, err)

	r := &Report{Kind: KindIncremental, StartedAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), Outbound: []string{"r1"}}
	require.NoError(t, a.Archive(context.Background(), r))

	require.NotNil(t, got)
	assert.Equal(t, "audits", aws.ToString(got.Bucket))
	assert.Equal(t, ObjectKey(r), aws.ToString(got.Key))
	assert.Equal(t, "application/json", aws.ToString(got.ContentType))

	var decoded Report
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, []string{"r1"}, decoded.Outbound)
}

func TestS3Archiver_PutError(t *testing.T) {
	stubAWS(t, func(*s3.PutObjectInput) error { return errors.New("access denied") })

	a, err := NewS3Archiver(context.Background(), S3Config{Region: "us-east-1", Bucket: "audits"})
	require.NoError(t, err)
	err = a.Archive(context.Background(), &Report{Kind: KindFull})
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3Archiver_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no profile")
	}
	_, err := NewS3Archiver(context.Background(), S3Config{})
	assert.Error(t, err)
}
