// Package account is the HTTP client for the account/rating collaborator
// service. All calls are server-to-server and bearer-token authenticated;
// callers on hot paths use the Async helpers so a slow or failing account
// service never blocks message dispatch.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/hyperreflector/signal-server/models"
)

// RemoteUser is the account service's cached snapshot of a user. Only the
// fields the signal server reads back are decoded.
type RemoteUser struct {
	UID            string             `json:"uid"`
	PingLat        float64            `json:"pingLat"`
	PingLon        float64            `json:"pingLon"`
	CountryCode    string             `json:"countryCode"`
	LastKnownPings []models.PingEntry `json:"lastKnownPings"`
}

// Located reports whether the snapshot carries usable coordinates.
func (u *RemoteUser) Located() bool {
	return u != nil && (u.PingLat != 0 || u.PingLon != 0)
}

type Client struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
}

func New(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  []byte(secret),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// UpdateUserData pushes cached profile/state fields for a user.
func (c *Client) UpdateUserData(ctx context.Context, uid string, fields map[string]any) error {
	return c.post(ctx, "/update-user-data-socket", map[string]any{
		"userData": fields,
		"uid":      uid,
	}, nil)
}

// UpdateUserPing pushes geo/ping fields for a user.
func (c *Client) UpdateUserPing(ctx context.Context, uid string, fields map[string]any) error {
	return c.post(ctx, "/update-user-ping", map[string]any{
		"userData": fields,
		"uid":      uid,
	}, nil)
}

// GetUser fetches the account service's snapshot of a user.
func (c *Client) GetUser(ctx context.Context, uid string) (*RemoteUser, error) {
	var user RemoteUser
	err := c.post(ctx, "/get-user-server", map[string]any{"userUID": uid}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type rpsResultResponse struct {
	Ratings map[string]int `json:"ratings"`
}

// ReportRpsResult records a decided mini-game and returns the updated
// ratings for both players.
func (c *Client) ReportRpsResult(ctx context.Context, challengerUID, opponentUID, winnerUID string) (map[string]int, error) {
	var resp rpsResultResponse
	err := c.post(ctx, "/mini-game/rps-result", map[string]any{
		"challengerUid": challengerUID,
		"opponentUid":   opponentUID,
		"winnerUid":     winnerUID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Ratings, nil
}

// Logout tells the account service a user's socket closed.
func (c *Client) Logout(ctx context.Context, uid, email string) error {
	return c.post(ctx, "/log-out-internal", map[string]any{
		"idToken":   uid,
		"userEmail": email,
	}, nil)
}

// token mints a short-lived HS256 bearer token with the shared secret.
func (c *Client) token() (string, error) {
	claims := models.ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Service: "signal-server",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	tokenString, err := c.token()
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("account service %s returned %d: %s", path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Async runs an account-service call in its own goroutine, logging and
// swallowing the failure. In-memory state already committed is never rolled
// back on collaborator errors.
func Async(what string, call func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := call(ctx); err != nil {
			log.Printf("account service: %s failed: %v", what, err)
		}
	}()
}
