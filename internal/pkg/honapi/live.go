package honapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
	"github.com/jake-scott/hon-client/version"
)

const DefaultBaseURL = "https://api-iot.he.services"

// client identification expected by the commands API
const (
	clientOS         = "android"
	clientAppVersion = "2.0.10"
)

type Live struct {
	baseURL string
	tokens  oauth2.TokenSource
	timeout time.Duration
	client  *http.Client
}

// NewLiveClient talks to the hOn cloud at baseURL.  The tokens source
// supplies the cognito access token, with the id token carried as the
// id_token extra.
func NewLiveClient(baseURL string, tokens oauth2.TokenSource) *Live {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Live{
		baseURL: baseURL,
		tokens:  tokens,
		client:  http.DefaultClient,
	}
}

func (c *Live) WithTimeout(d time.Duration) API {
	nc := *c
	nc.timeout = d
	return &nc
}

func (c *Live) WithHTTPClient(hc *http.Client) *Live {
	nc := *c
	nc.client = hc
	return &nc
}

func (c *Live) MakeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	var ctx = parent
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.timeout)
	}

	return ctx, cancel
}

func (c *Live) authorize(req *http.Request) error {
	if c.tokens == nil {
		return ErrNoAuthentication
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return errors.Wrap(err, "fetching hOn token")
	}
	if tok.AccessToken == "" {
		return ErrNoAuthentication
	}

	req.Header.Set("cognito-token", tok.AccessToken)
	if idToken, ok := tok.Extra("id_token").(string); ok {
		req.Header.Set("id-token", idToken)
	}
	return nil
}

func (c *Live) do(ctx context.Context, method string, path string, query url.Values, body interface{}) (map[string]interface{}, error) {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return nil, errors.Wrapf(err, "encoding request for %s", path)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, &reqBody)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	logging.Logger(ctx).Debugf("hOn API %s %s", method, path)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "calling %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.Wrapf(ErrNoAuthentication, "calling %s: HTTP status %d", path, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("calling %s: HTTP status %d", path, resp.StatusCode)
	}

	result := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrapf(err, "decoding response from %s", path)
	}

	return result, nil
}

func payloadOf(result map[string]interface{}) map[string]interface{} {
	payload, _ := result["payload"].(map[string]interface{})
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return payload
}

func toMapSlice(v interface{}) []map[string]interface{} {
	list, _ := v.([]interface{})
	out := make([]map[string]interface{}, 0, len(list))
	for _, i := range list {
		if m, ok := i.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *Live) LoadAppliances(ctx context.Context) ([]ApplianceInfo, error) {
	result, err := c.do(ctx, http.MethodGet, "/commands/v1/appliance", nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing appliances")
	}

	var items []ApplianceInfo
	for _, a := range toMapSlice(payloadOf(result)["appliances"]) {
		items = append(items, ApplianceInfo(a))
	}

	return items, nil
}

func (c *Live) LoadCommands(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error) {
	query := url.Values{}
	query.Set("applianceType", info.Type())
	query.Set("applianceModelId", info.ModelID())
	query.Set("macAddress", info.MacAddress())
	query.Set("os", clientOS)
	query.Set("appVersion", clientAppVersion)
	query.Set("code", info.Code())
	for param, key := range map[string]string{"firmwareId": "eepromId", "fwVersion": "fwVersion", "series": "series"} {
		if v := info.Get(key); v != "" {
			query.Set(param, v)
		}
	}

	result, err := c.do(ctx, http.MethodGet, "/commands/v1/retrieve", query, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "loading commands for %s", info.MacAddress())
	}

	payload := payloadOf(result)
	if code := parameter.ToString(payload["resultCode"]); code != "0" {
		logging.Logger(ctx).WithField("mac", info.MacAddress()).Errorf("loading commands: result code %q", code)
		return map[string]interface{}{}, nil
	}
	delete(payload, "resultCode")

	return payload, nil
}

func (c *Live) LoadCommandHistory(ctx context.Context, info ApplianceInfo) ([]map[string]interface{}, error) {
	result, err := c.do(ctx, http.MethodGet, "/commands/v1/appliance/"+url.PathEscape(info.MacAddress())+"/history", nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "loading command history for %s", info.MacAddress())
	}

	return toMapSlice(payloadOf(result)["history"]), nil
}

func (c *Live) LoadFavourites(ctx context.Context, info ApplianceInfo) ([]map[string]interface{}, error) {
	result, err := c.do(ctx, http.MethodGet, "/commands/v1/appliance/"+url.PathEscape(info.MacAddress())+"/favourite", nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "loading favourites for %s", info.MacAddress())
	}

	return toMapSlice(payloadOf(result)["favourites"]), nil
}

func (c *Live) LoadAttributes(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error) {
	query := url.Values{}
	query.Set("macAddress", info.MacAddress())
	query.Set("applianceType", info.Type())
	query.Set("category", "CYCLE")

	result, err := c.do(ctx, http.MethodGet, "/commands/v1/context", query, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "loading attributes for %s", info.MacAddress())
	}

	return payloadOf(result), nil
}

// LoadStatistics merges the usage statistics with the maintenance cycle
func (c *Live) LoadStatistics(ctx context.Context, info ApplianceInfo) (map[string]interface{}, error) {
	query := url.Values{}
	query.Set("macAddress", info.MacAddress())
	query.Set("applianceType", info.Type())

	result, err := c.do(ctx, http.MethodGet, "/commands/v1/statistics", query, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "loading statistics for %s", info.MacAddress())
	}
	statistics := payloadOf(result)

	query = url.Values{}
	query.Set("macAddress", info.MacAddress())
	result, err = c.do(ctx, http.MethodGet, "/commands/v1/maintenance-cycle", query, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "loading maintenance cycle for %s", info.MacAddress())
	}
	for k, v := range payloadOf(result) {
		statistics[k] = v
	}

	return statistics, nil
}

// SendCommand fills in the addressing fields of req and posts it
func (c *Live) SendCommand(ctx context.Context, info ApplianceInfo, req CommandRequest) (bool, error) {
	now := strfmt.DateTime(time.Now().UTC()).String()

	req.MacAddress = info.MacAddress()
	req.ApplianceType = info.Type()
	req.Timestamp = now
	req.TransactionID = req.MacAddress + "_" + now
	if req.Attributes == nil {
		req.Attributes = map[string]string{
			"channel":     "mobileApp",
			"origin":      "standardProgram",
			"energyLabel": "0",
		}
	}

	result, err := c.do(ctx, http.MethodPost, "/commands/v1/send", nil, req)
	if err != nil {
		return false, errors.Wrapf(err, "sending command %s", req.CommandName)
	}

	if code := parameter.ToString(payloadOf(result)["resultCode"]); code != "0" {
		logging.Logger(ctx).WithField("mac", req.MacAddress).Errorf("command %s rejected, result code %q", req.CommandName, code)
		return false, &ApiError{Command: req.CommandName, ResultCode: code}
	}

	return true, nil
}
