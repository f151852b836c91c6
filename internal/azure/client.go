// Package azure is an Azure OpenAI chat backend for question enhancement.
package azure

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
)

// completer is the subset of *azopenai.Client used here.
type completer interface {
	GetChatCompletions(ctx context.Context, body azopenai.ChatCompletionsOptions, options *azopenai.GetChatCompletionsOptions) (azopenai.GetChatCompletionsResponse, error)
}

type Client struct {
	client         completer
	deploymentName string
}

// NewClient authenticates against an Azure OpenAI resource with an API key.
func NewClient(endpoint, apiKey, deploymentName string) (*Client, error) {
	if endpoint == "" || apiKey == "" || deploymentName == "" {
		return nil, errors.New("azure endpoint, api key and deployment are required")
	}
	client, err := azopenai.NewClientWithKeyCredential(endpoint, azcore.NewKeyCredential(apiKey), nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure openai client: %w", err)
	}
	return &Client{client: client, deploymentName: deploymentName}, nil
}

// Chat sends one system and one user message and returns the first choice.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.GetChatCompletions(ctx, azopenai.ChatCompletionsOptions{
		DeploymentName: to.Ptr(c.deploymentName),
		Messages: []azopenai.ChatRequestMessageClassification{
			&azopenai.ChatRequestSystemMessage{Content: azopenai.NewChatRequestSystemMessageContent(system)},
			&azopenai.ChatRequestUserMessage{Content: azopenai.NewChatRequestUserMessageContent(user)},
		},
		N:           to.Ptr[int32](1),
		Temperature: to.Ptr[float32](0.2),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("azure chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return "", errors.New("azure chat completion: empty response")
	}
	return *resp.Choices[0].Message.Content, nil
}
