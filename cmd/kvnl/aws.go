package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cuelang.org/go/cue"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/epithet-ssh/kvnl/pkg/config"
	"github.com/epithet-ssh/kvnl/pkg/kvnlhttp"
)

type AWSCLI struct {
	Lambda AwsLambdaCLI `cmd:"lambda" help:"Run the KVNL HTTP service as an AWS Lambda function"`
}

type AwsLambdaCLI struct {
	ServerFlags     `embed:""`
	ConfigParameter string `help:"SSM Parameter Store parameter holding the service configuration" env:"CONFIG_PARAMETER_NAME"`
	ConfigSecretArn string `help:"ARN of a Secrets Manager secret holding the service configuration" env:"CONFIG_SECRET_ARN"`
}

type parameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type secretAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func (a *AwsLambdaCLI) Run(logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, unifiedConfig cue.Value) error {
	ctx := context.Background()
	logger.Info("starting Lambda handler",
		"config_parameter", a.ConfigParameter,
		"config_secret", a.ConfigSecretArn)

	cfg, err := defaults(unifiedConfig)
	if err != nil {
		return err
	}

	if a.ConfigParameter != "" || a.ConfigSecretArn != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		cfg, err = a.remoteConfig(ctx, ssm.NewFromConfig(awsCfg), secretsmanager.NewFromConfig(awsCfg))
		if err != nil {
			return err
		}
	}

	handler, shutdown, err := a.ServerFlags.merge(cfg).handler(ctx, logger, tlsCfg)
	if err != nil {
		return err
	}
	defer shutdown()

	logger.Info("Lambda initialized successfully")
	lambda.Start(kvnlhttp.LambdaHandler(handler, logger))
	return nil
}

// remoteConfig reads the service configuration from Parameter Store, or
// from Secrets Manager when a secret is named. Both hold YAML or JSON.
func (a *AwsLambdaCLI) remoteConfig(ctx context.Context, params parameterAPI, secrets secretAPI) (*config.CLI, error) {
	var doc string
	if a.ConfigSecretArn != "" {
		result, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(a.ConfigSecretArn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve secret: %w", err)
		}
		doc = aws.ToString(result.SecretString)
	} else {
		result, err := params.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(a.ConfigParameter),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve SSM parameter: %w", err)
		}
		if result.Parameter == nil {
			return nil, fmt.Errorf("SSM parameter %s has no value", a.ConfigParameter)
		}
		doc = aws.ToString(result.Parameter.Value)
	}

	val, err := config.LoadValueFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	return config.Decode[config.CLI](val)
}
