package openai

import (
	"errors"
	"math"

	"github.com/papertrail-ai/papertrail/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

// GraphOpenAIClient implements ai.GraphAIClient against any OpenAI compatible
// chat completions endpoint.
type GraphOpenAIClient struct {
	model   string
	chatURL string

	limiter *rate.Limiter

	ai.MetricsRecorder

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient.
//
// RequestsPerSecond <= 0 disables client side rate limiting.
type NewGraphOpenAIClientParams struct {
	Model   string
	ChatURL string
	ChatKey string

	RequestsPerSecond float64
}

// NewGraphOpenAIClient creates a chat client. It fails when no API key is set.
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) (*GraphOpenAIClient, error) {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	if chatClient == nil {
		return nil, errors.New("openai: missing api key")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if params.RequestsPerSecond > 0 {
		burst := int(math.Ceil(params.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(params.RequestsPerSecond), burst)
	}

	return &GraphOpenAIClient{
		model:   params.Model,
		chatURL: params.ChatURL,
		limiter: limiter,

		ChatClient: chatClient,
	}, nil
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
