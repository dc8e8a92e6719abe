// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/poiesic/imagerank/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Describer implements ai.Describer using an OpenAI-compatible multimodal chat model.
type Describer struct {
	client  llms.Model
	prompt  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// newDescriber is an internal constructor that returns the concrete type.
func newDescriber(config *ai.Config, limiter *rate.Limiter) (*Describer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.VisionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Describer{
		client:  client,
		prompt:  config.DescriptionPrompt,
		limiter: limiter,
		logger:  slog.Default().With("component", "openai-describer"),
	}, nil
}

// NewDescriber creates an image describer with its own request limiter.
//
// Returns ai.Describer interface to enforce abstraction.
func NewDescriber(config *ai.Config) (ai.Describer, error) {
	return newDescriber(config, newLimiter(config.RequestsPerMinute))
}

// DescribeImage sends the image inline as a data URL together with the
// description prompt and returns the model's caption.
func (d *Describer) DescribeImage(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", path)
	}

	if err := wait(ctx, d.limiter); err != nil {
		return "", err
	}

	dataURL := "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(d.prompt),
				llms.ImageURLPart(dataURL),
			},
		},
	}

	response, err := d.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		d.logger.Error("failed to describe image", "path", path, "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ErrEmptyResponse
	}

	description := cleanReply(response.Choices[0].Content)
	d.logger.Debug("image described", "path", path, "length", len(description))
	return description, nil
}
