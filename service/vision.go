package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/shhirl/fixmybanana/config"
	"github.com/shhirl/fixmybanana/model"
	"github.com/shhirl/fixmybanana/pkg/logger"
)

// Prompt sent with every classification request. The few-shot exchanges are
// text-only and pin the output format to one of the two labels.
const (
	systemPrompt = "You are a strict vision classifier. " +
		"Goal: From a SIDE-ON photo of a handstand, output exactly one label: " +
		"\"good form\" or \"banana back\". " +
		"Definitions: " +
		"• banana back = clear lumbar/spinal arch; ribs flare forward; hips in front of shoulders; " +
		"legs/feet drift behind the body, making a C/banana shape. " +
		"• good form = wrists–shoulders–hips–ankles vertically stacked; neutral spine; ribs tucked; " +
		"no visible midsection curve. " +
		"Rules: Output ONLY one of these strings with no punctuation or explanation."

	fewShotBananaUser = "Side-on handstand description: hips are ahead of the shoulder line, " +
		"lower back is arched, chest/ribs flaring, legs trailing behind."
	fewShotBananaReply = "banana back"

	fewShotGoodUser = "Side-on handstand description: wrists, shoulders, hips, ankles form one vertical line; " +
		"spine looks neutral; ribs tucked; toes stacked over hips."
	fewShotGoodReply = "good form"

	classifyInstruction = "Classify this SIDE-ON handstand image as exactly one label: " +
		"\"good form\" or \"banana back\"."
)

// ErrorKind discriminates classification failure causes
type ErrorKind int

const (
	// KindMissingKey means no API key is configured; no network call was made
	KindMissingKey ErrorKind = iota
	// KindCredential means the credential check came back with a non-success status
	KindCredential
	// KindBadImage means the stored image could not be read or encoded
	KindBadImage
	// KindExhausted means every candidate model failed
	KindExhausted
	// KindTransport means a network-level failure before any model reply
	KindTransport
)

// ClassifyError is a classification failure with a renderable message
type ClassifyError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ClassifyError) Error() string {
	return e.Message
}

func (e *ClassifyError) Unwrap() error {
	return e.Err
}

// VisionService classifies handstand photos by delegating to an OpenAI
// chat-completions endpoint with a fixed multimodal prompt.
type VisionService struct {
	config *config.OpenAIConfig
}

func NewVisionService(cfg *config.OpenAIConfig) *VisionService {
	return &VisionService{config: cfg}
}

// Classify runs the full credential-check/encode/complete flow for the image
// at imagePath. Every failure resolves to an error-category result; this
// method never fails the request itself.
func (s *VisionService) Classify(ctx context.Context, imagePath string) model.AnalysisResult {
	reply, cerr := s.classify(ctx, imagePath)
	if cerr != nil {
		logger.Warn(ctx, "classification failed",
			"kind", cerr.Kind,
			"error", cerr.Err,
		)
		return model.ErrorResult(cerr.Message)
	}

	result := model.Normalize(reply)
	logger.Info(ctx, "classification completed",
		"analysis", result.Analysis,
		"form_quality", result.FormQuality,
	)
	return result
}

func (s *VisionService) classify(ctx context.Context, imagePath string) (string, *ClassifyError) {
	if s.config.APIKey == "" {
		return "", &ClassifyError{
			Kind:    KindMissingKey,
			Message: "OpenAI API key not found. Please set OPENAI_API_KEY environment variable.",
		}
	}

	client := s.newClient()

	if cerr := s.checkCredential(ctx, client); cerr != nil {
		return "", cerr
	}

	image, format, err := encodeImage(imagePath)
	if err != nil {
		return "", &ClassifyError{
			Kind:    KindBadImage,
			Message: "Failed to read uploaded image: " + err.Error(),
			Err:     err,
		}
	}

	messages := buildMessages(image, format)

	for _, name := range s.config.Models {
		reply, err := s.complete(ctx, client, name, messages)
		if err != nil {
			logger.Debug(ctx, "model attempt failed", "model", name, "error", err)
			continue
		}
		return reply, nil
	}

	return "", &ClassifyError{
		Kind:    KindExhausted,
		Message: "All vision models failed. Please try again.",
	}
}

func (s *VisionService) newClient() *openai.Client {
	clientConfig := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientConfig.BaseURL = s.config.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// checkCredential issues a cheap models listing to verify the configured key
// before spending a real classification call
func (s *VisionService) checkCredential(ctx context.Context, client *openai.Client) *ClassifyError {
	checkCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	_, err := client.ListModels(checkCtx)
	if err == nil {
		return nil
	}

	if status, ok := upstreamStatus(err); ok {
		return &ClassifyError{
			Kind:    KindCredential,
			Message: fmt.Sprintf("API key validation failed: %d", status),
			Err:     err,
		}
	}
	return &ClassifyError{
		Kind:    KindTransport,
		Message: "API connection test failed: " + err.Error(),
		Err:     err,
	}
}

// complete issues one classification attempt against a single model
func (s *VisionService) complete(ctx context.Context, client *openai.Client, modelName string, messages []openai.ChatCompletionMessage) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	resp, err := client.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: messages,
		// A plain 0 would be dropped by the json omitempty tag and the API
		// would fall back to its default; smallest nonzero float is the
		// go-openai way to request deterministic sampling.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   s.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", modelName)
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *VisionService) timeout() time.Duration {
	return time.Duration(s.config.TimeoutSeconds) * time.Second
}

// buildMessages assembles the fixed chat payload: system instructions, the
// two few-shot exchanges, then the actual image as an inline data URL
func buildMessages(base64Image, format string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: fewShotBananaUser,
		},
		{
			Role:    openai.ChatMessageRoleAssistant,
			Content: fewShotBananaReply,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: fewShotGoodUser,
		},
		{
			Role:    openai.ChatMessageRoleAssistant,
			Content: fewShotGoodReply,
		},
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: classifyInstruction,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:image/%s;base64,%s", format, base64Image),
					},
				},
			},
		},
	}
}

// encodeImage reads the stored image and returns its base64 payload plus the
// media type inferred from the file extension
func encodeImage(imagePath string) (string, string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(data), imageFormat(imagePath), nil
}

func imageFormat(imagePath string) string {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		return "png"
	case ".gif":
		return "gif"
	default:
		return "jpeg"
	}
}

// upstreamStatus extracts the HTTP status from a go-openai error, if the
// failure got far enough to observe one
func upstreamStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}
