// Where: internal/infra/secrets/awssm.go
// What: AWS Secrets Manager backed Store.
// Why: Deploy-time secrets live in the managed store, scoped by environment.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// AWS error codes mapped to package errors.
const (
	resourceNotFoundException = "ResourceNotFoundException"
	accessDeniedException     = "AccessDeniedException"
)

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)

	ListSecrets(
		ctx context.Context,
		params *secretsmanager.ListSecretsInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.ListSecretsOutput, error)
}

// AWSStore reads secrets from AWS Secrets Manager.
type AWSStore struct {
	api    ManagerAPI
	logger *zap.Logger
}

// NewAWSStore loads the default AWS config (env, shared profile, or
// instance role) for region and returns a Store.
func NewAWSStore(ctx context.Context, region string, logger *zap.Logger) (*AWSStore, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewAWSStoreWithAPI(secretsmanager.NewFromConfig(cfg), logger), nil
}

// NewAWSStoreWithAPI wraps an existing client.
func NewAWSStoreWithAPI(api ManagerAPI, logger *zap.Logger) *AWSStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AWSStore{api: api, logger: logger}
}

// Get returns the string value of id, or its binary value as a string.
func (s *AWSStore) Get(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", errIDRequired
	}
	s.logger.Debug("reading secret", zap.String("secret_id", id))

	output, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", mapAWSError(err)
	}
	switch {
	case output.SecretString != nil:
		return *output.SecretString, nil
	case output.SecretBinary != nil:
		return string(output.SecretBinary), nil
	default:
		return "", ErrEmpty
	}
}

// List returns the names of secrets starting with prefix.
func (s *AWSStore) List(ctx context.Context, prefix string) ([]string, error) {
	input := &secretsmanager.ListSecretsInput{}
	if prefix != "" {
		input.Filters = []types.Filter{{Key: types.FilterNameStringTypeName, Values: []string{prefix}}}
	}
	paginator := secretsmanager.NewListSecretsPaginator(s.api, input)
	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapAWSError(err)
		}
		for _, entry := range page.SecretList {
			if entry.Name != nil {
				names = append(names, *entry.Name)
			}
		}
	}
	return names, nil
}

func mapAWSError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case resourceNotFoundException:
			return ErrNotFound
		case accessDeniedException:
			return ErrAccessDenied
		}
		return fmt.Errorf("secrets manager: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("secrets manager: %w", err)
}
