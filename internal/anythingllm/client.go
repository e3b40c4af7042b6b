package anythingllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/procrastinando/telegrambot-anythingllm/internal/passwordutil"
)

// Client wraps the AnythingLLM admin API. Every operation is a single
// round trip; transport failures and failure payloads are logged here
// and surfaced to callers only as the operation's "nothing happened"
// result, never as an error.
type Client struct {
	http           *http.Client
	baseURL        string
	apiKey         string
	passwordLength int
}

func New(httpClient *http.Client, baseURL, apiKey string, passwordLength int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if passwordLength <= 0 {
		passwordLength = passwordutil.DefaultLength
	}
	return &Client{
		http:           httpClient,
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:         strings.TrimSpace(apiKey),
		passwordLength: passwordLength,
	}
}

type listUsersResponse struct {
	Users []struct {
		ID       UserID `json:"id"`
		Username string `json:"username"`
	} `json:"users"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Bio      string `json:"bio"`
}

type createUserResponse struct {
	User *struct {
		ID UserID `json:"id"`
	} `json:"user"`
}

type manageUsersRequest struct {
	UserIDs []UserID `json:"userIds"`
	// Reset false keeps the existing member list intact; the server
	// treats true as "replace everyone with this list".
	Reset bool `json:"reset"`
}

type updateUserRequest struct {
	Password string `json:"password"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// LookupUser scans the full user list for an exact username match and
// returns the first match. A transport failure reads as "not found".
func (c *Client) LookupUser(ctx context.Context, username string) (UserID, bool) {
	var out listUsersResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/users", nil, &out); err != nil {
		slog.Warn("anythingllm_list_users_error", "error", err.Error())
		return "", false
	}
	for _, u := range out.Users {
		if u.Username == username {
			return u.ID, true
		}
	}
	return "", false
}

// CreateUser provisions a new default-role account with a freshly
// generated password and returns the server-assigned id plus the
// plaintext password (the server never echoes it back).
func (c *Client) CreateUser(ctx context.Context, username, bio string) (UserID, string, bool) {
	password := passwordutil.Alphanumeric(c.passwordLength)
	payload := createUserRequest{
		Username: username,
		Password: password,
		Role:     "default",
		Bio:      bio,
	}
	var out createUserResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/users/new", payload, &out); err != nil {
		slog.Warn("anythingllm_create_user_error", "username", username, "error", err.Error())
		return "", "", false
	}
	if out.User == nil || out.User.ID == "" {
		slog.Warn("anythingllm_create_user_missing_id", "username", username)
		return "", "", false
	}
	return out.User.ID, password, true
}

// AddToWorkspace ensures the account is a member of the workspace.
// The reset:false payload is additive; existing members stay.
func (c *Client) AddToWorkspace(ctx context.Context, id UserID, slug string) bool {
	if strings.TrimSpace(string(id)) == "" {
		return false
	}
	payload := manageUsersRequest{UserIDs: []UserID{id}, Reset: false}
	path := fmt.Sprintf("/api/v1/admin/workspaces/%s/manage-users", url.PathEscape(slug))
	var out successResponse
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		slog.Warn("anythingllm_manage_users_error", "user_id", string(id), "workspace", slug, "error", err.Error())
		return false
	}
	if !out.Success {
		slog.Warn("anythingllm_manage_users_failed", "user_id", string(id), "workspace", slug, "server_error", out.Error)
		return false
	}
	return true
}

// ResetPassword sets a freshly generated password on the account and
// returns it only when the server confirms the update.
func (c *Client) ResetPassword(ctx context.Context, id UserID) (string, bool) {
	if strings.TrimSpace(string(id)) == "" {
		return "", false
	}
	password := passwordutil.Alphanumeric(c.passwordLength)
	path := "/api/v1/admin/users/" + url.PathEscape(string(id))
	var out successResponse
	if err := c.do(ctx, http.MethodPost, path, updateUserRequest{Password: password}, &out); err != nil {
		slog.Warn("anythingllm_reset_password_error", "user_id", string(id), "error", err.Error())
		return "", false
	}
	if !out.Success {
		slog.Warn("anythingllm_reset_password_failed", "user_id", string(id), "server_error", out.Error)
		return "", false
	}
	return password, true
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("anythingllm http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
