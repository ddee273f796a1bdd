package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrMediaNotFound is returned by SendPhoto when a local image is missing.
var ErrMediaNotFound = errors.New("media not found")

type Client struct {
	httpClient *http.Client
	baseURL    string
	mediaDir   string
}

// NewClient talks to the Bot API at apiURL (normally https://api.telegram.org).
// Relative photo names are resolved inside mediaDir.
func NewClient(apiURL, token, mediaDir string) *Client {
	return &Client{
		// must exceed the long-poll timeout
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    fmt.Sprintf("%s/bot%s", strings.TrimRight(apiURL, "/"), token),
		mediaDir:   mediaDir,
	}
}

func (c *Client) call(ctx context.Context, method string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("telegram: %s", apiResp.Description)
	}
	return apiResp.Result, nil
}

// GetUpdates long-polls for new messages starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	result, err := c.call(ctx, "getUpdates", GetUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("unmarshal updates: %w", err)
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error {
	req := SendMessageRequest{ChatID: chatID, Text: text}
	if replyMarkup != nil {
		rm, err := json.Marshal(replyMarkup)
		if err != nil {
			return err
		}
		req.ReplyMarkup = rm
	}
	_, err := c.call(ctx, "sendMessage", req)
	return err
}

// SendPhoto sends photo by URL when it starts with http, otherwise uploads the file from the media dir.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo, caption string, replyMarkup interface{}) error {
	var rm json.RawMessage
	if replyMarkup != nil {
		raw, err := json.Marshal(replyMarkup)
		if err != nil {
			return err
		}
		rm = raw
	}

	if strings.HasPrefix(photo, "http://") || strings.HasPrefix(photo, "https://") {
		_, err := c.call(ctx, "sendPhoto", SendPhotoRequest{ChatID: chatID, Photo: photo, Caption: caption, ReplyMarkup: rm})
		return err
	}

	path := filepath.Join(c.mediaDir, filepath.Base(photo))
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrMediaNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	if rm != nil {
		_ = w.WriteField("reply_markup", string(rm))
	}
	part, err := w.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read media: %w", err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendPhoto", &body)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = c.do(req)
	return err
}
