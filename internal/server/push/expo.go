package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
)

// ExpoDispatcher posts to an Expo-compatible push API.
type ExpoDispatcher struct {
	url    string
	client *http.Client
}

func NewExpoDispatcher(url string) *ExpoDispatcher {
	return &ExpoDispatcher{url: url, client: &http.Client{Timeout: 15 * time.Second}}
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *ExpoDispatcher) Send(ctx context.Context, token string, msg Message, data map[string]string) error {
	body, err := json.Marshal([]expoMessage{{To: token, Title: msg.Title, Body: msg.Body, Data: data, Sound: "default"}})
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return common.Transient("push", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read push response: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return common.Transient("push", fmt.Errorf("push API status %d", resp.StatusCode))
	}

	var r expoResponse
	if err := json.Unmarshal(respBody, &r); err != nil {
		return fmt.Errorf("failed to parse push response (status %d): %w", resp.StatusCode, err)
	}
	if len(r.Errors) > 0 {
		return fmt.Errorf("push API error: %s: %s", r.Errors[0].Code, r.Errors[0].Message)
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("push API returned no ticket")
	}
	if t := r.Data[0]; t.Status != "ok" {
		return fmt.Errorf("push rejected: %s %s", t.Details.Error, t.Message)
	}
	return nil
}
