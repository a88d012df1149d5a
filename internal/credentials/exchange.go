package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultTokenURL is the WorkOS endpoint that exchanges refresh tokens.
	DefaultTokenURL = "https://api.workos.com/user_management/authenticate"
	// DefaultClientID is the public client id presented during the exchange.
	DefaultClientID = "client_01HNM792M5G5G1A2THWPXKFMXB"
)

// Exchanger trades a refresh token for a fresh token pair.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthExchanger performs the refresh_token grant as a form-encoded POST with
// the client id in the body.
type OAuthExchanger struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuthExchanger creates an exchanger for the given token endpoint.
// A nil client gets a 30s timeout, which also bounds a shared exchange.
func NewOAuthExchanger(tokenURL, clientID string, client *http.Client) *OAuthExchanger {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthExchanger{
		config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

// Exchange implements Exchanger. Non-2xx answers are returned as
// *RefreshFailedError carrying the status and body.
func (e *OAuthExchanger) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, &RefreshFailedError{Err: errors.New("empty refresh token")}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	// A token without access token and expiry forces the source to refresh.
	token, err := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &RefreshFailedError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
				Err:        err,
			}
		}
		return nil, &RefreshFailedError{Err: fmt.Errorf("exchanging refresh token: %w", err)}
	}

	logAccount(ctx, token)

	return token, nil
}

// logAccount reports the account the token belongs to, when the endpoint says.
func logAccount(ctx context.Context, token *oauth2.Token) {
	user, ok := token.Extra("user").(map[string]any)
	if !ok {
		return
	}
	email, _ := user["email"].(string)
	id, _ := user["id"].(string)
	org, _ := token.Extra("organization_id").(string)

	slog.InfoContext(ctx, "authenticated upstream account",
		"email", email,
		"user_id", id,
		"organization_id", org,
	)
}
