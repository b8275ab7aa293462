package graph

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"ig-vote-bot/internal/domain"
)

// RefreshLongLivedToken продлевает long-lived токен через fb_exchange_token.
func (c *Client) RefreshLongLivedToken(ctx context.Context, appID, appSecret, token string) (domain.TokenExchange, error) {
	if appID == "" || appSecret == "" {
		return domain.TokenExchange{}, errors.New("graph: не заданы app id или app secret")
	}
	endpoint := c.baseURL + "/oauth/access_token?" + url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {appID},
		"client_secret":     {appSecret},
		"fb_exchange_token": {token},
	}.Encode()
	return c.exchange(ctx, "refresh_token", endpoint)
}

// ExchangeShortLivedToken меняет короткий токен на long-lived.
// Сначала пробует Facebook Login, затем Instagram Login (ig_exchange_token).
func (c *Client) ExchangeShortLivedToken(ctx context.Context, appID, appSecret, shortToken string) (domain.TokenExchange, error) {
	res, fbErr := c.RefreshLongLivedToken(ctx, appID, appSecret, shortToken)
	if fbErr == nil {
		return res, nil
	}
	c.log.Warn().Err(fbErr).Msg("graph: fb_exchange_token не сработал, пробуем ig_exchange_token")
	endpoint := c.igBaseURL + "/access_token?" + url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {appSecret},
		"access_token":  {shortToken},
	}.Encode()
	res, igErr := c.exchange(ctx, "exchange_token", endpoint)
	if igErr != nil {
		return domain.TokenExchange{}, fmt.Errorf("exchange token: %w", errors.Join(fbErr, igErr))
	}
	return res, nil
}

func (c *Client) exchange(ctx context.Context, op, endpoint string) (domain.TokenExchange, error) {
	resp, err := c.get(ctx, op, endpoint)
	if err != nil {
		return domain.TokenExchange{}, err
	}
	token := stringField(resp, "access_token")
	if token == "" {
		return domain.TokenExchange{}, fmt.Errorf("graph %s: ответ без access_token", op)
	}
	return domain.TokenExchange{
		AccessToken: token,
		TokenType:   stringField(resp, "token_type"),
		ExpiresIn:   intField(resp, "expires_in"),
	}, nil
}
