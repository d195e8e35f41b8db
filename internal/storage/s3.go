package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	aclGranteeAllUsers  = "http://acs.amazonaws.com/groups/global/AllUsers"
	aclGranteeAuthUsers = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

// S3API — методы S3 клиента, используемые S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetPublicAccessBlock(ctx context.Context, in *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
	GetBucketAcl(ctx context.Context, in *s3.GetBucketAclInput, optFns ...func(*s3.Options)) (*s3.GetBucketAclOutput, error)
	GetBucketPolicyStatus(ctx context.Context, in *s3.GetBucketPolicyStatusInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyStatusOutput, error)
}

// Presigner подписывает GET запросы к объектам.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest — подписанный запрос.
type PresignedRequest struct {
	URL string
}

// S3Store — Store поверх S3 (или S3-совместимого хранилища).
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
}

// S3Options — параметры подключения к S3.
type S3Options struct {
	Bucket string
	Region string

	// Endpoint — адрес S3-совместимого хранилища (MinIO и т.п.).
	// Включает path-style адресацию.
	Endpoint string
}

// NewS3Store создаёт S3Store с учётными данными из окружения.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidCommand)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, sdkPresigner{s3.NewPresignClient(client)}, opts.Bucket), nil
}

// NewS3StoreWithClient создаёт S3Store поверх готового клиента.
func NewS3StoreWithClient(client S3API, presigner Presigner, bucket string) *S3Store {
	return &S3Store{client: client, presigner: presigner, bucket: bucket}
}

func (s *S3Store) Write(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	return s3Error(err)
}

func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return s3Error(err)
}

func (s *S3Store) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if opts.Prefix != "" {
		in.Prefix = aws.String(opts.Prefix)
	}
	if opts.Delimiter != "" {
		in.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.BatchSize > 0 {
		in.MaxKeys = aws.Int32(int32(opts.BatchSize))
	}
	if opts.ContinuationToken != "" {
		in.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return ListResult{}, s3Error(err)
	}

	res := ListResult{ContinuationToken: aws.ToString(out.NextContinuationToken)}
	if opts.Delimiter != "" {
		for _, p := range out.CommonPrefixes {
			res.Prefixes = append(res.Prefixes, aws.ToString(p.Prefix))
		}
		return res, nil
	}
	for _, obj := range out.Contents {
		res.Objects = append(res.Objects, Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return res, nil
}

func (s *S3Store) PresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", s3Error(err)
	}
	return req.URL, nil
}

// IsBucketPrivate проверяет, закрыт ли bucket для публичного доступа.
//
// Без PublicAccessBlock bucket считается публичным. Если публичные ACL
// не игнорируются, проверяются гранты AllUsers/AuthenticatedUsers; если
// публичные политики не ограничены — статус политики bucket'а.
func (s *S3Store) IsBucketPrivate(ctx context.Context) (bool, error) {
	pab, err := s.client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		if apiErrorCode(err) == "NoSuchPublicAccessBlockConfiguration" {
			return false, nil
		}
		return false, s3Error(err)
	}
	if pab.PublicAccessBlockConfiguration == nil {
		return false, nil
	}

	aclsPrivate := aws.ToBool(pab.PublicAccessBlockConfiguration.IgnorePublicAcls)
	policyPrivate := aws.ToBool(pab.PublicAccessBlockConfiguration.RestrictPublicBuckets)

	if !aclsPrivate {
		acl, err := s.client.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: aws.String(s.bucket)})
		if err != nil {
			return false, s3Error(err)
		}
		aclsPrivate = !containsPublicGrant(acl.Grants)
	}

	if !policyPrivate {
		status, err := s.client.GetBucketPolicyStatus(ctx, &s3.GetBucketPolicyStatusInput{Bucket: aws.String(s.bucket)})
		switch {
		case err != nil && apiErrorCode(err) == "NoSuchBucketPolicy":
			policyPrivate = true
		case err != nil:
			return false, s3Error(err)
		default:
			policyPrivate = status.PolicyStatus == nil || !aws.ToBool(status.PolicyStatus.IsPublic)
		}
	}

	return aclsPrivate && policyPrivate, nil
}

func containsPublicGrant(grants []types.Grant) bool {
	for _, g := range grants {
		if g.Grantee == nil || g.Grantee.Type != types.TypeGroup {
			continue
		}
		uri := aws.ToString(g.Grantee.URI)
		if uri == aclGranteeAllUsers || uri == aclGranteeAuthUsers {
			return true
		}
	}
	return false
}

// s3Error переводит ошибки S3 в ErrNotFound / ErrPermissions.
func s3Error(err error) error {
	if err == nil {
		return nil
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case "AccessDenied", "Forbidden":
		return fmt.Errorf("%w: %v", ErrPermissions, err)
	}
	return err
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// sdkPresigner адаптирует *s3.PresignClient к Presigner.
type sdkPresigner struct {
	client *s3.PresignClient
}

func (p sdkPresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.client.PresignGetObject(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}
