package recipeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/recipe-finder/internal/logging"
	"github.com/example/recipe-finder/internal/recipes"
)

const (
	// FileField is the multipart part name the recipe service reads the image from.
	FileField = "file"

	maxResponseBytes = 4 << 20
	maxErrorBodyLen  = 512
)

// Client posts images to the recipe service's generate endpoint.
type Client struct {
	endpoint *url.URL
	client   *http.Client
	timeout  time.Duration
	logger   *zap.Logger
}

// New returns a Client for endpoint. A nil httpClient uses http.DefaultClient.
// A positive timeout bounds every Generate call.
func New(endpoint string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid recipe service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid recipe service url %q: scheme must be http or https", endpoint)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: u,
		client:   httpClient,
		timeout:  timeout,
		logger:   logger.Named("recipe_client"),
	}, nil
}

// Generate uploads the image and decodes the ingredients and recipes.
// Any transport failure, non-2xx status or undecodable body is an error.
func (c *Client) Generate(ctx context.Context, requestID string, upload *recipes.Upload) (*recipes.Result, error) {
	if upload == nil {
		return nil, errors.New("no upload given")
	}
	opLogger := logging.WithOperation(c.logger, "recipeclient.generate", requestID)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, contentType, err := encodeUpload(upload)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Accept", "application/json")
	if requestID != "" {
		request.Header.Set("X-Request-ID", requestID)
	}

	started := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer response.Body.Close()

	opLogger.Debug("recipe service responded",
		zap.Int("status", response.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyLen))
		return nil, &recipes.ServiceError{
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var result recipes.Result
	if err := json.NewDecoder(io.LimitReader(response.Body, maxResponseBytes)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return normalize(&result), nil
}

func encodeUpload(upload *recipes.Upload) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := upload.Filename
	if filename == "" {
		filename = "upload"
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// normalize replaces absent lists with empty ones so callers may range freely.
func normalize(result *recipes.Result) *recipes.Result {
	if result.Ingredients == nil {
		result.Ingredients = []string{}
	}
	if result.Recipes == nil {
		result.Recipes = []recipes.Recipe{}
	}
	for i := range result.Recipes {
		if result.Recipes[i].Ingredients == nil {
			result.Recipes[i].Ingredients = []string{}
		}
		if result.Recipes[i].Steps == nil {
			result.Recipes[i].Steps = []string{}
		}
	}
	return result
}
