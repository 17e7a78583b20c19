package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// Image sizes accepted by GenerateImage.
const (
	ImageSize256  = openai.CreateImageSize256x256
	ImageSize512  = openai.CreateImageSize512x512
	ImageSize1024 = openai.CreateImageSize1024x1024
)

// apiClient builds an SDK client sharing c's credential, base URL and transport.
func (c *Conversation) apiClient() *openai.Client {
	cfg := openai.DefaultConfig(c.credential)
	cfg.BaseURL = apiRoot(c.baseURL)
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}

// ListModels returns the ids of the models the endpoint serves.
func (c *Conversation) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.apiClient().ListModels(ctx)
	if err != nil {
		return nil, sdkError(err, "list models")
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// ModelAvailable reports whether name is one of the served model ids.
func (c *Conversation) ModelAvailable(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, newError(InvalidArgument, "model name is required")
	}
	ids, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == name {
			return true, nil
		}
	}
	return false, nil
}

// GenerateImage requests one image for prompt and returns its URL. An empty
// size means ImageSize1024.
func (c *Conversation) GenerateImage(ctx context.Context, prompt, size string) (string, error) {
	if prompt == "" {
		return "", newError(InvalidArgument, "prompt is required")
	}
	switch size {
	case "":
		size = ImageSize1024
	case ImageSize256, ImageSize512, ImageSize1024:
	default:
		return "", newError(InvalidArgument, "unsupported image size %q", size)
	}
	resp, err := c.apiClient().CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", sdkError(err, "generate image")
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", newError(Parse, "generate image: no url in response")
	}
	return resp.Data[0].URL, nil
}

func sdkError(err error, op string) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: API, Message: op + ": " + apiErr.Message, HTTPStatus: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: API, Message: op + ": " + reqErr.Error(), HTTPStatus: reqErr.HTTPStatusCode, Err: err}
	}
	return wrapError(Transport, err, "%s", op)
}
