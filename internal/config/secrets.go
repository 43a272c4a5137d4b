package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// SecretFetcher is the subset of the Secrets Manager client used at startup.
type SecretFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretFetcher builds a Secrets Manager client for the configured region.
func NewSecretFetcher(ctx context.Context, cfg *Config) (SecretFetcher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// ResolveSharedSecret returns the shared secret for AuthGate. MCP_AUTH_KEY wins
// when set; otherwise the secret named by MCP_AUTH_SECRET_ID is fetched. A
// JSON secret string is accepted when it carries an "MCP_AUTH_KEY" or
// "api_key" field.
func ResolveSharedSecret(ctx context.Context, cfg *Config, fetcher SecretFetcher) (string, error) {
	if cfg.AuthKey != "" {
		return cfg.AuthKey, nil
	}
	if cfg.AuthSecretID == "" {
		return "", newConfigError("MCP_AUTH_KEY", "is required (or set MCP_AUTH_SECRET_ID)")
	}
	if fetcher == nil {
		return "", newConfigError("MCP_AUTH_SECRET_ID", "is set but no Secrets Manager client is available")
	}

	out, err := fetcher.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.AuthSecretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "ResourceNotFoundException":
				return "", newConfigError("MCP_AUTH_SECRET_ID", "refers to a secret that does not exist: %s", cfg.AuthSecretID)
			case "AccessDeniedException":
				return "", newConfigError("MCP_AUTH_SECRET_ID", "cannot be read: access denied")
			}
		}
		return "", fmt.Errorf("failed to fetch shared secret: %w", err)
	}

	secret := strings.TrimSpace(aws.ToString(out.SecretString))
	if strings.HasPrefix(secret, "{") {
		var fields map[string]string
		if err := json.Unmarshal([]byte(secret), &fields); err != nil {
			return "", fmt.Errorf("failed to decode JSON secret: %w", err)
		}
		secret = fields["MCP_AUTH_KEY"]
		if secret == "" {
			secret = fields["api_key"]
		}
	}

	if secret == "" {
		return "", newConfigError("MCP_AUTH_SECRET_ID", "resolved to an empty secret")
	}
	return secret, nil
}
