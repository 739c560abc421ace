package cloud

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
)

// Config holds what every remote backend needs to reach AWS.
type Config struct {
	EC2Role           bool
	ID, Secret, Token string
	Region, Endpoint  string
}

// NewSession creates an AWS session. Credentials are resolved from the
// environment first (which is how the Lambda runtime provides them), then from
// the static values, then from the EC2 role when enabled.
func NewSession(config Config) (*session.Session, error) {
	providers := []credentials.Provider{
		&credentials.EnvProvider{},
		&credentials.StaticProvider{
			Value: credentials.Value{
				AccessKeyID:     config.ID,
				SecretAccessKey: config.Secret,
				SessionToken:    config.Token,
			},
		},
	}
	if config.EC2Role {
		providers = append(providers, &ec2rolecreds.EC2RoleProvider{
			Client: ec2metadata.New(session.Must(session.NewSession())),
		})
	}

	creds := credentials.NewChainCredentials(providers)
	if _, err := creds.Get(); err != nil {
		return nil, errors.Wrap(err, "invalid credentials")
	}

	cfg := aws.NewConfig().
		WithRegion(config.Region).
		WithCredentials(creds).
		WithCredentialsChainVerboseErrors(true)
	if config.Endpoint != "" {
		cfg = cfg.WithEndpoint(config.Endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "session")
	}
	return sess, nil
}
