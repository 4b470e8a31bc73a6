package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrNoPhone is returned when a recipient has no phone number on file.
var ErrNoPhone = errors.New("recipient has no phone number")

// Publisher is the subset of the SNS client used for SMS delivery.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway sends messages as transactional SMS through Amazon SNS.
type SNSGateway struct {
	client   Publisher
	senderID string
}

// NewSNSGateway wraps an SNS publisher. senderID may be empty.
func NewSNSGateway(client Publisher, senderID string) *SNSGateway {
	return &SNSGateway{client: client, senderID: senderID}
}

// NewSNSGatewayFromEnv loads the default AWS configuration (environment,
// shared config, instance role) for region and builds an SNS gateway.
func NewSNSGatewayFromEnv(ctx context.Context, region, senderID string) (*SNSGateway, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewSNSGateway(sns.NewFromConfig(cfg), senderID), nil
}

// Send publishes the rendered template to the recipient's phone.
func (g *SNSGateway) Send(ctx context.Context, to Recipient, template TemplateID) error {
	if to.Phone == "" {
		return fmt.Errorf("send %s to %s: %w", template, to.MemberID, ErrNoPhone)
	}
	text, err := Render(template)
	if err != nil {
		return err
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if g.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(g.senderID),
		}
	}

	_, err = g.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to.Phone),
		Message:           aws.String(text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", template, to.MemberID, err)
	}
	return nil
}
