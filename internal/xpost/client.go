// Package xpost mirrors a published post to X: OAuth1-signed v1.1 media
// upload followed by a v2 create-tweet call.
package xpost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
	"go.uber.org/zap"

	"github.com/zebadrabbit/HelpMePost/internal/gate"
	"github.com/zebadrabbit/HelpMePost/internal/imageopt"
	"github.com/zebadrabbit/HelpMePost/internal/model"
)

const (
	uploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	tweetURL  = "https://api.twitter.com/2/tweets"

	// MaxImageBytes is X's limit for a simple image upload.
	MaxImageBytes = 5_000_000

	maxResponseBytes = 1 << 20
)

// Credentials are the four OAuth 1.0a user-context secrets.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Missing returns the environment names of the empty fields.
func (c Credentials) Missing() []string {
	var out []string
	for _, kv := range []struct{ k, v string }{
		{"X_CONSUMER_KEY", c.ConsumerKey},
		{"X_CONSUMER_SECRET", c.ConsumerSecret},
		{"X_ACCESS_TOKEN", c.AccessToken},
		{"X_ACCESS_SECRET", c.AccessSecret},
	} {
		if kv.v == "" {
			out = append(out, kv.k)
		}
	}
	return out
}

// Image is one image to attach, in display order.
type Image struct {
	Data        []byte
	ContentType string
}

// APIError is a non-2xx answer from X.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string { return e.Message }

type Client struct {
	http      *http.Client
	api       *twitter.Client
	optimizer imageopt.Optimizer
	log       *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the signed client; tests use it to point the
// client at a local server.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
		c.api = twitter.NewClient(h)
	}
}

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client whose requests are signed with cred.
func New(ctx context.Context, cred Credentials, opts ...Option) *Client {
	config := oauth1.NewConfig(cred.ConsumerKey, cred.ConsumerSecret)
	token := oauth1.NewToken(cred.AccessToken, cred.AccessSecret)
	httpClient := config.Client(ctx, token)

	opt := imageopt.Default()
	opt.MaxBytes = MaxImageBytes
	c := &Client{
		http:      httpClient,
		api:       twitter.NewClient(httpClient),
		optimizer: opt,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ValidateCredentials checks the tokens against the account endpoint and
// returns the account's screen name.
func (c *Client) ValidateCredentials() (string, error) {
	user, resp, err := c.api.Accounts.VerifyCredentials(&twitter.AccountVerifyParams{
		SkipStatus:   twitter.Bool(true),
		IncludeEmail: twitter.Bool(false),
	})
	if err != nil {
		if resp != nil {
			return "", &APIError{Endpoint: "GET /1.1/account/verify_credentials.json", Status: resp.StatusCode, Message: fmt.Sprintf("xpost: verify credentials: HTTP %d: %v", resp.StatusCode, err)}
		}
		return "", fmt.Errorf("xpost: verify credentials: %w", err)
	}
	return user.ScreenName, nil
}

// Post uploads images and creates a tweet with text fitted to MaxStatus.
// It returns the new tweet id.
func (c *Client) Post(ctx context.Context, text string, images []Image) (string, error) {
	refs := make([]model.MediaRef, len(images))
	for i, img := range images {
		refs[i] = model.MediaRef{ContentType: img.ContentType, Size: int64(len(img.Data))}
	}
	if err := gate.Check(model.PlatformX, refs); err != nil {
		return "", err
	}

	status := FitStatus(text, MaxStatus)
	mediaIDs := make([]string, 0, len(images))
	for i, img := range images {
		opt, err := c.optimizer.Optimize(img.Data)
		if err != nil {
			return "", fmt.Errorf("xpost: image %d: %w", i, err)
		}
		ct := img.ContentType
		if opt.Compressed {
			ct = opt.ContentType
		}
		id, err := uploadMediaSimple(ctx, c.http, opt.Data, ct)
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, id)
	}

	id, err := createTweetV2(ctx, c.http, status, mediaIDs)
	if err != nil {
		return "", err
	}
	c.log.Info("x post created", zap.String("id", id), zap.Int("images", len(mediaIDs)))
	return id, nil
}

func uploadMediaSimple(ctx context.Context, client *http.Client, data []byte, contentType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "image"+extension(contentType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("xpost: media upload: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("xpost: read media upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Endpoint: "POST /1.1/media/upload.json", Status: resp.StatusCode, Message: diagnoseHTTPError(resp, body, "POST /1.1/media/upload.json")}
	}

	var out model.MediaUploadResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("xpost: decode media upload: %w", err)
	}
	if out.MediaIDString != "" {
		return out.MediaIDString, nil
	}
	if out.MediaID != 0 {
		return strconv.FormatInt(out.MediaID, 10), nil
	}
	return "", errors.New("xpost: media upload: missing media_id in response")
}

func createTweetV2(ctx context.Context, client *http.Client, text string, mediaIDs []string) (string, error) {
	payload := model.TweetReq{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &model.TweetMedia{MediaIDs: mediaIDs}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tweetURL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("xpost: create tweet: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("xpost: read create tweet response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Endpoint: "POST /2/tweets", Status: resp.StatusCode, Message: diagnoseHTTPError(resp, body, "POST /2/tweets")}
	}

	var out model.TweetResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("xpost: decode tweet: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("xpost: create tweet: missing id in response")
	}
	return out.Data.ID, nil
}

// diagnoseHTTPError renders an X error body, trying the v2 problem shape,
// then the v1.1 errors array, then the raw body.
func diagnoseHTTPError(resp *http.Response, body []byte, endpoint string) string {
	prefix := fmt.Sprintf("xpost: %s: HTTP %d", endpoint, resp.StatusCode)
	if lvl := resp.Header.Get("X-Access-Level"); lvl != "" {
		prefix += " (access level " + lvl + ")"
	}

	var v2 struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &v2) == nil && (v2.Title != "" || v2.Detail != "") {
		return fmt.Sprintf("%s: %s: %s", prefix, v2.Title, v2.Detail)
	}

	var v1 struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &v1) == nil && len(v1.Errors) > 0 {
		parts := make([]string, len(v1.Errors))
		for i, e := range v1.Errors {
			parts[i] = fmt.Sprintf("code %d: %s", e.Code, e.Message)
		}
		return prefix + ": " + strings.Join(parts, "; ")
	}

	raw := strings.TrimSpace(string(body))
	if len(raw) > 300 {
		raw = raw[:300]
	}
	return prefix + ": " + raw
}

func extension(contentType string) string {
	switch gate.NormalizeContentType(contentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}
