package cloud

import (
	"context"
	"errors"
	"net/http"
)

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// accessToken runs the password grant and returns a bearer token.
func (u *HTTPUploader) accessToken(ctx context.Context) (string, error) {
	req, err := jsonRequest(ctx, http.MethodPost, u.cfg.APIURL+"/v1/oauth/token", tokenRequest{
		GrantType:    "password",
		ClientID:     u.cfg.ClientID,
		ClientSecret: u.cfg.ClientSecret,
		Username:     u.cfg.Username,
		Password:     u.cfg.Password,
	})
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	if err := u.do(req, "Error requesting token", &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("Error requesting token: empty access token")
	}
	return tok.AccessToken, nil
}
