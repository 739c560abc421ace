package main

import (
	"flag"

	"github.com/trussle/expense/pkg/cloud"
)

const (
	defaultAWSID       = ""
	defaultAWSSecret   = ""
	defaultAWSToken    = ""
	defaultAWSRegion   = "eu-west-1"
	defaultAWSEndpoint = ""
	defaultAWSEC2Role  = false
)

// awsFlags are the credential flags every command shares.
type awsFlags struct {
	ec2Role  *bool
	id       *string
	secret   *string
	token    *string
	region   *string
	endpoint *string
}

func registerAWSFlags(flagset *flag.FlagSet) awsFlags {
	return awsFlags{
		ec2Role:  flagset.Bool("aws.ec2.role", defaultAWSEC2Role, "AWS configuration to use EC2 roles"),
		id:       flagset.String("aws.id", defaultAWSID, "AWS configuration id"),
		secret:   flagset.String("aws.secret", defaultAWSSecret, "AWS configuration secret"),
		token:    flagset.String("aws.token", defaultAWSToken, "AWS configuration token"),
		region:   flagset.String("aws.region", defaultAWSRegion, "AWS configuration region"),
		endpoint: flagset.String("aws.endpoint", defaultAWSEndpoint, "AWS endpoint override, for local emulators"),
	}
}

func (a awsFlags) config() cloud.Config {
	return cloud.Config{
		EC2Role:  *a.ec2Role,
		ID:       *a.id,
		Secret:   *a.secret,
		Token:    *a.token,
		Region:   *a.region,
		Endpoint: *a.endpoint,
	}
}
