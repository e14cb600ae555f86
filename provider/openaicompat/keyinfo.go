package openaicompat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/ineyio/sharelink"
)

// SupportsQuotaProbe reports whether a key-info endpoint is configured.
func (p *Provider) SupportsQuotaProbe() bool { return p.keyInfoPath != "" }

// ProbeQuota asks the key-info endpoint how much of the key is left.
//
// The first usable field wins: data.limit_remaining, then
// data.rate_limit.requests, then data.limit - data.usage formatted as
// dollars. An empty string means none of them was present.
func (p *Provider) ProbeQuota(ctx context.Context, auth sharelink.Auth) (string, error) {
	if p.keyInfoPath == "" {
		return "", nil
	}

	resp, err := p.do(ctx, http.MethodGet, p.baseURL+p.keyInfoPath, auth, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := p.mapHTTPError(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", fmt.Errorf("sharelink: read key info: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("sharelink: key info: invalid JSON")
	}

	return remainingFromKeyInfo(gjson.GetBytes(body, "data")), nil
}

func remainingFromKeyInfo(data gjson.Result) string {
	if !data.IsObject() {
		return ""
	}
	if v := data.Get("limit_remaining"); v.Type == gjson.Number {
		return formatNumber(v.Float())
	}
	if v := data.Get("rate_limit.requests"); v.Type == gjson.Number {
		return formatNumber(v.Float())
	}
	limit, usage := data.Get("limit"), data.Get("usage")
	if limit.Type == gjson.Number && usage.Type == gjson.Number {
		return fmt.Sprintf("$%.4f", limit.Float()-usage.Float())
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
