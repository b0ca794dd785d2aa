package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"chatsync/internal/constants"
	"chatsync/internal/errors"
	"chatsync/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ClientOptions configures the asset upload client.
type ClientOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *logrus.Logger
}

// Client uploads local attachments to external storage over HTTP
// multipart. An upload only ever produces a URL; it never writes to the
// log source, so a failed upload leaves no trace to clean up.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates an upload client.
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultUploadTimeoutSec * time.Second
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     opts.Logger,
	}
}

// UploadAsset pushes one local file and returns its public URL.
func (c *Client) UploadAsset(ctx context.Context, localPath string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "upload.UploadAsset",
		attribute.String("file", filepath.Base(localPath)),
	)
	defer span.End()

	if err := ValidateAssetPath(localPath); err != nil {
		return "", errors.NewValidationError("asset", localPath, err.Error())
	}

	file, err := os.Open(localPath) // #nosec G304 - path validated above
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUploadFailed, "failed to open asset")
	}
	defer func() {
		_ = file.Close()
	}()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUploadFailed, "failed to build multipart form")
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUploadFailed, "failed to read asset")
	}
	if err := writer.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUploadFailed, "failed to finalize multipart form")
	}

	url := c.baseURL + "/assets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUploadFailed, "failed to create upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", errors.WrapRetryable(err, errors.ErrCodeUploadFailed, "upload request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.NewLogSourceError("/assets", resp.StatusCode,
			fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUploadFailed, "failed to decode upload response")
	}
	if result.URL == "" {
		return "", errors.New(errors.ErrCodeUploadFailed, "upload response missing url")
	}

	c.logger.WithField("file", filepath.Base(localPath)).Debug("Asset uploaded")
	return result.URL, nil
}
