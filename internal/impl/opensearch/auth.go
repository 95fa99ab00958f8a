// Copyright 2026 The Bulkpump Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package opensearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	aFieldOAuth               = "oauth2"
	aFieldOAuthEnabled        = "enabled"
	aFieldOAuthAccessToken    = "access_token"
	aFieldOAuthTokenURL       = "token_url"
	aFieldOAuthClientID       = "client_id"
	aFieldOAuthClientSecret   = "client_secret"
	aFieldOAuthScopes         = "scopes"
	aFieldOAuthTokenCache     = "token_cache"
	aFieldOAuthTokenCacheKey  = "token_key"
	aFieldOAuthEndpointParams = "endpoint_params"
)

// OAuthField returns a config field for OAuth2 bearer token authentication.
func OAuthField() *service.ConfigField {
	return service.NewObjectField(aFieldOAuth,
		service.NewBoolField(aFieldOAuthEnabled).
			Description("Whether to use OAuth2 authentication.").
			Default(false),
		service.NewStringField(aFieldOAuthAccessToken).
			Description("A static access token to use for authentication.").
			Secret().
			Default(""),
		service.NewStringField(aFieldOAuthTokenURL).
			Description("The URL of the token endpoint to obtain tokens from with the client credentials flow.").
			Default(""),
		service.NewStringField(aFieldOAuthClientID).
			Description("The client ID to use for the client credentials flow.").
			Default(""),
		service.NewStringField(aFieldOAuthClientSecret).
			Description("The client secret to use for the client credentials flow.").
			Secret().
			Default(""),
		service.NewStringListField(aFieldOAuthScopes).
			Description("Scopes to request with the client credentials flow.").
			Default([]any{}),
		service.NewStringMapField(aFieldOAuthEndpointParams).
			Description("Additional parameters to send to the token endpoint.").
			Advanced().
			Default(map[string]any{}),
		service.NewStringField(aFieldOAuthTokenCache).
			Description("Instead of a static `access_token` or a token endpoint, query a cache resource for tokens.").
			Advanced().
			Default(""),
		service.NewStringField(aFieldOAuthTokenCacheKey).
			Description("Required when using a `token_cache`, the key to query the cache with for tokens.").
			Advanced().
			Default(""),
	).Description("Allows you to specify OAuth2 authentication. A static token takes precedence over a token endpoint, which takes precedence over a token cache.").
		Advanced().
		Optional()
}

// OAuthConfig describes where bearer tokens are obtained from.
type OAuthConfig struct {
	Enabled        bool
	AccessToken    string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	Scopes         []string
	EndpointParams map[string][]string
	TokenCache     string
	TokenCacheKey  string
}

func oAuthFromParsed(pConf *service.ParsedConfig) (conf OAuthConfig, err error) {
	if !pConf.Contains(aFieldOAuth) {
		return
	}
	pConf = pConf.Namespace(aFieldOAuth)
	if conf.Enabled, err = pConf.FieldBool(aFieldOAuthEnabled); err != nil || !conf.Enabled {
		return
	}
	if conf.AccessToken, err = pConf.FieldString(aFieldOAuthAccessToken); err != nil {
		return
	}
	if conf.TokenURL, err = pConf.FieldString(aFieldOAuthTokenURL); err != nil {
		return
	}
	if conf.ClientID, err = pConf.FieldString(aFieldOAuthClientID); err != nil {
		return
	}
	if conf.ClientSecret, err = pConf.FieldString(aFieldOAuthClientSecret); err != nil {
		return
	}
	if conf.Scopes, err = pConf.FieldStringList(aFieldOAuthScopes); err != nil {
		return
	}
	var params map[string]string
	if params, err = pConf.FieldStringMap(aFieldOAuthEndpointParams); err != nil {
		return
	}
	if len(params) > 0 {
		conf.EndpointParams = map[string][]string{}
		for k, v := range params {
			conf.EndpointParams[k] = strings.Split(v, ",")
		}
	}
	if conf.TokenCache, err = pConf.FieldString(aFieldOAuthTokenCache); err != nil {
		return
	}
	if conf.TokenCacheKey, err = pConf.FieldString(aFieldOAuthTokenCacheKey); err != nil {
		return
	}
	return
}

// TokenSource returns a token source for the config, or nil when OAuth2 is
// disabled.
func (c OAuthConfig) TokenSource(mgr *service.Resources) (oauth2.TokenSource, error) {
	if !c.Enabled {
		return nil, nil
	}
	switch {
	case c.AccessToken != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.AccessToken}), nil
	case c.TokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:       c.ClientID,
			ClientSecret:   c.ClientSecret,
			TokenURL:       c.TokenURL,
			Scopes:         c.Scopes,
			EndpointParams: c.EndpointParams,
		}
		return cc.TokenSource(context.Background()), nil
	case c.TokenCache != "":
		if c.TokenCacheKey == "" {
			return nil, errors.New("a token_key must be specified when using a token_cache")
		}
		if !mgr.HasCache(c.TokenCache) {
			return nil, fmt.Errorf("cache resource '%v' was not found", c.TokenCache)
		}
		return &cacheTokenSource{mgr: mgr, cache: c.TokenCache, key: c.TokenCacheKey}, nil
	}
	return nil, errors.New("oauth2 is enabled but neither an access_token, token_url or token_cache was specified")
}

// cacheTokenSource reads the current token from a cache resource on each
// request, allowing tokens to be rotated by another component.
type cacheTokenSource struct {
	mgr   *service.Resources
	cache string
	key   string
}

func (s *cacheTokenSource) Token() (*oauth2.Token, error) {
	ctx := context.Background()

	var tok []byte
	var terr error
	if err := s.mgr.AccessCache(ctx, s.cache, func(c service.Cache) {
		tok, terr = c.Get(ctx, s.key)
	}); err != nil {
		return nil, fmt.Errorf("accessing cache resource '%v': %w", s.cache, err)
	}
	if terr != nil {
		return nil, fmt.Errorf("obtaining token with key %v from cache: %w", s.key, terr)
	}
	if len(tok) == 0 || string(tok) == "null" {
		return nil, errors.New("token is empty")
	}
	return &oauth2.Token{AccessToken: string(tok)}, nil
}
