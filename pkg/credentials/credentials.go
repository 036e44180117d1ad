// Package credentials provides database passwords for new connections.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	rdsauth "github.com/aws/aws-sdk-go-v2/feature/rds/auth"

	"github.com/txn2/table-masker/pkg/config"
)

// TokenProvider returns the password to present for a single connection attempt.
// Implementations are called once per connection, so short-lived tokens are
// always fresh.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Static returns a fixed password.
type Static struct {
	password string
}

// NewStatic creates a Static provider.
func NewStatic(password string) *Static {
	return &Static{password: password}
}

// Token returns the configured password.
func (s *Static) Token(_ context.Context) (string, error) {
	if s.password == "" {
		return "", errors.New("no database password configured")
	}
	return s.password, nil
}

// IAM generates RDS IAM authentication tokens.
type IAM struct {
	endpoint string
	region   string
	user     string
	creds    aws.CredentialsProvider
}

// NewIAM creates an IAM token provider from an explicit credentials provider.
func NewIAM(host string, port int, region, user string, creds aws.CredentialsProvider) (*IAM, error) {
	if creds == nil {
		return nil, errors.New("aws credentials provider is required")
	}
	if region == "" {
		return nil, errors.New("aws region is required for IAM database auth")
	}
	return &IAM{
		endpoint: net.JoinHostPort(host, strconv.Itoa(port)),
		region:   region,
		user:     user,
		creds:    creds,
	}, nil
}

// NewIAMFromConfig resolves AWS credentials from the default chain
// (environment, shared profile, instance role) and returns an IAM provider.
func NewIAMFromConfig(ctx context.Context, db config.DatabaseConfig) (*IAM, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if db.Region != "" {
		opts = append(opts, awsconfig.WithRegion(db.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewIAM(db.Host, db.Port, awsCfg.Region, db.User, awsCfg.Credentials)
}

// Token builds a signed authentication token for the configured endpoint and user.
func (p *IAM) Token(ctx context.Context) (string, error) {
	token, err := rdsauth.BuildAuthToken(ctx, p.endpoint, p.region, p.user, p.creds)
	if err != nil {
		return "", fmt.Errorf("creating auth token: %w", err)
	}
	return token, nil
}

// New returns the provider selected by db.Auth.
func New(ctx context.Context, db config.DatabaseConfig) (TokenProvider, error) {
	switch db.Auth {
	case config.AuthPassword:
		return NewStatic(db.Password), nil
	case config.AuthIAM, "":
		return NewIAMFromConfig(ctx, db)
	default:
		return nil, fmt.Errorf("unknown database auth mode: %s", db.Auth)
	}
}

// Verify interface compliance.
var (
	_ TokenProvider = (*Static)(nil)
	_ TokenProvider = (*IAM)(nil)
)
