// Package mapi is a client for the messaging.mapi.mg SMS gateway, used for
// out-of-band admin notifications when push delivery is not enough.
package mapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://messaging.mapi.mg/api"

type Client struct {
	BaseURL  string
	Username string
	Password string
	HTTP     *http.Client
}

func New() *Client {
	return &Client{
		BaseURL:  defaultBaseURL,
		Username: os.Getenv("MAPI_USERNAME"),
		Password: os.Getenv("MAPI_PASSWORD"),
		HTTP:     &http.Client{Timeout: 20 * time.Second},
	}
}

type LoginResponse struct {
	Token  string `json:"token"`
	Result string `json:"result"`
}

// Login authenticates and returns a bearer token for the other calls.
func (c *Client) Login() (*LoginResponse, error) {
	form := url.Values{
		"Username": {c.Username},
		"Password": {c.Password},
	}
	resp, err := c.HTTP.Post(
		c.BaseURL+"/authentication/login",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("mapi login: %w", err)
	}
	defer resp.Body.Close()

	var out LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("mapi login: decode response: %w", err)
	}
	return &out, nil
}

type SendResponse struct {
	Result string `json:"result"`
}

// Send delivers one message; channel is "sms" unless overridden.
func (c *Client) Send(token, recipient, message, channel string) (*SendResponse, error) {
	if channel == "" {
		channel = "sms"
	}
	form := url.Values{
		"Recipient": {recipient},
		"Message":   {message},
		"Channel":   {channel},
	}
	req, err := http.NewRequest(
		http.MethodPost,
		c.BaseURL+"/msg/send",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mapi send: %w", err)
	}
	defer resp.Body.Close()

	var out SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("mapi send: decode response: %w", err)
	}
	return &out, nil
}

type OfferResponse struct {
	Available int `json:"available"`
}

// Available returns the remaining SMS credit.
func (c *Client) Available(token string) (*OfferResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/smsoffer/available", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mapi offer: %w", err)
	}
	defer resp.Body.Close()

	var out OfferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("mapi offer: decode response: %w", err)
	}
	return &out, nil
}
