// Package files moves staged and downlinked files between a gateway and
// the platform's HTTP API.
package files

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultContentType = "binary/octet-stream"

	directUploadsPath   = "/rails/active_storage/direct_uploads"
	downlinkedFilesPath = "/gateway_api/v1.0/downlinked_files"

	maxErrorBody = 4 << 10
)

type Client struct {
	baseURL string
	header  http.Header
	http    *http.Client
	logger  *slog.Logger
}

// New returns a client for baseURL (scheme and host, no trailing slash).
// header is sent on every platform request; it is not sent to upload URLs.
func New(baseURL string, header http.Header, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		header:  header.Clone(),
		http:    httpClient,
		logger:  logger,
	}
}

// Download fetches a file the platform staged for upload to a system.
func (c *Client) Download(ctx context.Context, path string) (string, []byte, error) {
	req, err := c.platformRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", nil, &DownloadError{Path: path, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, &DownloadError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, &DownloadError{Path: path, StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	filename, err := attachmentName(resp.Header.Get("Content-Disposition"))
	if err != nil {
		return "", nil, &DownloadError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &DownloadError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Info("downloaded staged file", "filename", filename, "bytes", len(data))
	return filename, data, nil
}

func attachmentName(disposition string) (string, error) {
	if disposition == "" {
		return "", fmt.Errorf("response has no Content-Disposition header")
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return "", fmt.Errorf("parse Content-Disposition: %w", err)
	}
	name := params["filename"]
	if name == "" {
		return "", fmt.Errorf("no filename in Content-Disposition")
	}
	return name, nil
}

// UploadRequest describes a file downlinked from a system. Data is sent
// as is; when Data is nil the file at Path is read.
type UploadRequest struct {
	Filename    string
	Data        []byte
	Path        string
	System      string
	Timestamp   int64
	ContentType string
	CommandID   *int64
	Metadata    map[string]any
}

type directUpload struct {
	SignedID     string `json:"signed_id"`
	DirectUpload struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"direct_upload"`
}

type downlinkedFile struct {
	SignedID  string         `json:"signed_id"`
	Name      string         `json:"name"`
	Timestamp int64          `json:"timestamp"`
	System    string         `json:"system"`
	CommandID *int64         `json:"command_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Upload reserves storage, PUTs the bytes and registers the file with the
// platform. It returns the storage signed id.
func (c *Client) Upload(ctx context.Context, r UploadRequest) (string, error) {
	if r.Filename == "" {
		return "", &UploadError{Step: StepRequest, Err: fmt.Errorf("filename is required")}
	}
	if r.System == "" {
		return "", &UploadError{Step: StepRequest, Err: fmt.Errorf("system is required")}
	}
	data := r.Data
	if data == nil {
		if r.Path == "" {
			return "", &UploadError{Step: StepRequest, Err: fmt.Errorf("data or path is required")}
		}
		var err error
		if data, err = os.ReadFile(r.Path); err != nil {
			return "", &UploadError{Step: StepRequest, Err: err}
		}
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	timestamp := r.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}
	sum := md5.Sum(data)
	checksum := base64.StdEncoding.EncodeToString(sum[:])

	reservation, err := c.requestUpload(ctx, r.Filename, len(data), contentType, checksum)
	if err != nil {
		return "", err
	}
	if err := c.put(ctx, reservation, data, contentType, checksum); err != nil {
		return "", err
	}

	record := downlinkedFile{
		SignedID:  reservation.SignedID,
		Name:      r.Filename,
		Timestamp: timestamp,
		System:    r.System,
		CommandID: r.CommandID,
		Metadata:  r.Metadata,
	}
	if err := c.register(ctx, record); err != nil {
		return "", err
	}
	c.logger.Info("uploaded downlinked file", "filename", r.Filename, "system", r.System, "bytes", len(data))
	return reservation.SignedID, nil
}

func (c *Client) requestUpload(ctx context.Context, filename string, size int, contentType, checksum string) (directUpload, error) {
	form := url.Values{}
	form.Set("filename", filename)
	form.Set("byte_size", strconv.Itoa(size))
	form.Set("content_type", contentType)
	form.Set("checksum", checksum)

	req, err := c.platformRequest(ctx, http.MethodPost, directUploadsPath, strings.NewReader(form.Encode()))
	if err != nil {
		return directUpload{}, &UploadError{Step: StepRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return directUpload{}, &UploadError{Step: StepRequest, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return directUpload{}, &UploadError{Step: StepRequest, StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	var out directUpload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return directUpload{}, &UploadError{Step: StepRequest, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.SignedID == "" || out.DirectUpload.URL == "" {
		return directUpload{}, &UploadError{Step: StepRequest, StatusCode: resp.StatusCode, Err: fmt.Errorf("response lacks signed_id or direct_upload.url")}
	}
	return out, nil
}

func (c *Client) put(ctx context.Context, reservation directUpload, data []byte, contentType, checksum string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reservation.DirectUpload.URL, bytes.NewReader(data))
	if err != nil {
		return &UploadError{Step: StepPut, Err: err}
	}
	for k, v := range reservation.DirectUpload.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-MD5", checksum)

	resp, err := c.http.Do(req)
	if err != nil {
		return &UploadError{Step: StepPut, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &UploadError{Step: StepPut, StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	return nil
}

func (c *Client) register(ctx context.Context, record downlinkedFile) error {
	body, err := json.Marshal(record)
	if err != nil {
		return &UploadError{Step: StepRegister, Err: err}
	}
	req, err := c.platformRequest(ctx, http.MethodPost, downlinkedFilesPath, bytes.NewReader(body))
	if err != nil {
		return &UploadError{Step: StepRegister, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &UploadError{Step: StepRegister, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &UploadError{Step: StepRegister, StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	return nil
}

func (c *Client) platformRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
