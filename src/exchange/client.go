// Package exchange is a signed REST client for OKX's v5 API: tickers,
// candles, positions, order history, fills and balance. Pure I/O, no
// trading decisions live here.
package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"aitrader/src/apperr"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client is a signed OKX v5 REST client.
type Client struct {
	cfg  Config
	http *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return (code >= 500 && code <= 599) || code == 429 || code == 408
}

func NewClient(cfg Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{cfg: cfg, http: httpClient}
}

func sign(secret, timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func isoTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func mapHTTPError(op string, statusCode int, body []byte) error {
	switch {
	case statusCode == 401 || statusCode == 403:
		return apperr.New(apperr.KindAuth, op, fmt.Errorf("http %d: %s", statusCode, string(body)))
	case statusCode == 429:
		return apperr.New(apperr.KindRateLimited, op, fmt.Errorf("http %d: %s", statusCode, string(body)))
	case statusCode >= 500:
		return apperr.New(apperr.KindTransport, op, fmt.Errorf("http %d: %s", statusCode, string(body)))
	default:
		return apperr.New(apperr.KindBusinessReject, op, fmt.Errorf("http %d: %s", statusCode, string(body)))
	}
}

func (c *Client) doRequest(op, method, path, query string, body []byte, private bool) (*apiResponse, error) {
	fullPath := path
	if query != "" {
		fullPath = path + "?" + query
	}

	req := c.http.R()
	if c.cfg.UseSimulated {
		req.SetHeader("x-simulated-trading", "1")
	}

	if private {
		ts := isoTimestamp()
		bodyStr := ""
		if body != nil {
			bodyStr = string(body)
		}
		sig := sign(c.cfg.APISecret, ts, method, fullPath, bodyStr)
		req.
			SetHeader("OK-ACCESS-KEY", c.cfg.APIKey).
			SetHeader("OK-ACCESS-SIGN", sig).
			SetHeader("OK-ACCESS-TIMESTAMP", ts).
			SetHeader("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)
	}

	if body != nil {
		req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, fullPath)
	if err != nil {
		return nil, apperr.New(apperr.KindTransport, op, err)
	}

	if resp.StatusCode() != 200 {
		return nil, mapHTTPError(op, resp.StatusCode(), resp.Body())
	}

	var parsed apiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, apperr.New(apperr.KindProtocol, op, err)
	}
	if parsed.Code != "0" {
		return nil, apperr.New(apperr.KindBusinessReject, op, fmt.Errorf("okx code=%s msg=%s", parsed.Code, parsed.Msg))
	}

	return &parsed, nil
}

func (c *Client) GetTicker(instID string) (*Ticker, error) {
	resp, err := c.doRequest("GetTicker", "GET", "/api/v5/market/ticker", "instId="+instID, nil, false)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		Ts     string `json:"ts"`
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, apperr.New(apperr.KindProtocol, "GetTicker", err)
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.KindBusinessReject, "GetTicker", fmt.Errorf("no ticker returned for %s", instID))
	}

	last, err := strconv.ParseFloat(rows[0].Last, 64)
	if err != nil {
		return nil, apperr.New(apperr.KindProtocol, "GetTicker", err)
	}
	ts, _ := strconv.ParseInt(rows[0].Ts, 10, 64)

	return &Ticker{InstID: rows[0].InstID, Last: last, Ts: time.UnixMilli(ts)}, nil
}

func (c *Client) GetCandles(instID, bar string, limit int) ([]Candle, error) {
	query := fmt.Sprintf("instId=%s&bar=%s&limit=%d", instID, bar, limit)
	resp, err := c.doRequest("GetCandles", "GET", "/api/v5/market/candles", query, nil, false)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, apperr.New(apperr.KindProtocol, "GetCandles", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(r[0], 10, 64)
		o, _ := strconv.ParseFloat(r[1], 64)
		h, _ := strconv.ParseFloat(r[2], 64)
		l, _ := strconv.ParseFloat(r[3], 64)
		cl, _ := strconv.ParseFloat(r[4], 64)
		vol, _ := strconv.ParseFloat(r[5], 64)
		candles = append(candles, Candle{
			Ts: time.UnixMilli(ts), Open: o, High: h, Low: l, Close: cl, Volume: vol,
		})
	}
	return candles, nil
}

func (c *Client) GetPositions() ([]Position, error) {
	resp, err := c.doRequest("GetPositions", "GET", "/api/v5/account/positions", "", nil, true)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		InstID   string `json:"instId"`
		PosSide  string `json:"posSide"`
		Pos      string `json:"pos"`
		AvgPx    string `json:"avgPx"`
		MarkPx   string `json:"markPx"`
		Margin   string `json:"margin"`
		Upl      string `json:"upl"`
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, apperr.New(apperr.KindProtocol, "GetPositions", err)
	}

	positions := make([]Position, 0, len(rows))
	for _, r := range rows {
		size, _ := strconv.ParseFloat(r.Pos, 64)
		positions = append(positions, Position{
			InstID:        r.InstID,
			PosSide:       r.PosSide,
			Side:          sideFromPosSide(r.PosSide, size),
			Size:          size,
			AvgPx:         parseFloatPtr(r.AvgPx),
			MarkPx:        parseFloatPtr(r.MarkPx),
			Margin:        parseFloatPtr(r.Margin),
			UnrealizedPnl: parseFloatPtr(r.Upl),
		})
	}
	return positions, nil
}

func (c *Client) GetOrderHistory(after string, limit int) ([]Order, error) {
	query := fmt.Sprintf("instType=SWAP&limit=%d", limit)
	if after != "" {
		query += "&after=" + after
	}
	resp, err := c.doRequest("GetOrderHistory", "GET", "/api/v5/trade/orders-history", query, nil, true)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		OrdID     string `json:"ordId"`
		InstID    string `json:"instId"`
		Side      string `json:"side"`
		PosSide   string `json:"posSide"`
		TdMode    string `json:"tdMode"`
		OrdType   string `json:"ordType"`
		Px        string `json:"px"`
		Sz        string `json:"sz"`
		AccFillSz string `json:"accFillSz"`
		State     string `json:"state"`
		UTime     string `json:"uTime"`
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, apperr.New(apperr.KindProtocol, "GetOrderHistory", err)
	}

	orders := make([]Order, 0, len(rows))
	for _, r := range rows {
		size, _ := strconv.ParseFloat(r.Sz, 64)
		filled, _ := strconv.ParseFloat(r.AccFillSz, 64)
		uTimeMs, _ := strconv.ParseInt(r.UTime, 10, 64)
		orders = append(orders, Order{
			OrdID:      r.OrdID,
			InstID:     r.InstID,
			Side:       r.Side,
			PosSide:    r.PosSide,
			TdMode:     r.TdMode,
			OrderType:  r.OrdType,
			Price:      parseFloatPtr(r.Px),
			Size:       size,
			FilledSize: filled,
			Status:     r.State,
			UpdatedAt:  time.UnixMilli(uTimeMs),
		})
	}
	return orders, nil
}

func (c *Client) GetFills(ordID, after string, limit int) ([]Fill, error) {
	query := fmt.Sprintf("instType=SWAP&limit=%d", limit)
	if ordID != "" {
		query += "&ordId=" + ordID
	}
	if after != "" {
		query += "&after=" + after
	}
	resp, err := c.doRequest("GetFills", "GET", "/api/v5/trade/fills", query, nil, true)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		OrdID   string `json:"ordId"`
		TradeID string `json:"tradeId"`
		InstID  string `json:"instId"`
		Side    string `json:"side"`
		FillSz  string `json:"fillSz"`
		FillPx  string `json:"fillPx"`
		Fee     string `json:"fee"`
		Ts      string `json:"ts"`
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, apperr.New(apperr.KindProtocol, "GetFills", err)
	}

	fills := make([]Fill, 0, len(rows))
	for _, r := range rows {
		size, _ := strconv.ParseFloat(r.FillSz, 64)
		price, _ := strconv.ParseFloat(r.FillPx, 64)
		fee, _ := strconv.ParseFloat(r.Fee, 64)
		tsMs, _ := strconv.ParseInt(r.Ts, 10, 64)
		fills = append(fills, Fill{
			OrdID: r.OrdID, TradeID: r.TradeID, InstID: r.InstID, Side: r.Side,
			FillSize: size, FillPrice: price, Fee: fee, Ts: time.UnixMilli(tsMs),
		})
	}
	return fills, nil
}

func (c *Client) GetBalance(ccy string) (*Balance, error) {
	query := ""
	if ccy != "" {
		query = "ccy=" + ccy
	}
	resp, err := c.doRequest("GetBalance", "GET", "/api/v5/account/balance", query, nil, true)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Details []struct {
			Ccy       string `json:"ccy"`
			AvailBal  string `json:"availBal"`
			FrozenBal string `json:"frozenBal"`
			EqUsd     string `json:"eqUsd"`
		} `json:"details"`
	}
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, apperr.New(apperr.KindProtocol, "GetBalance", err)
	}
	if len(rows) == 0 || len(rows[0].Details) == 0 {
		return nil, apperr.New(apperr.KindBusinessReject, "GetBalance", fmt.Errorf("no balance details for %s", ccy))
	}

	d := rows[0].Details[0]
	avail, _ := strconv.ParseFloat(d.AvailBal, 64)
	frozen, _ := strconv.ParseFloat(d.FrozenBal, 64)
	valuation, _ := strconv.ParseFloat(d.EqUsd, 64)

	return &Balance{Ccy: d.Ccy, Available: avail, Frozen: frozen, Valuation: valuation}, nil
}

func sideFromPosSide(posSide string, size float64) string {
	switch posSide {
	case "long":
		return "buy"
	case "short":
		return "sell"
	default:
		if size >= 0 {
			return "buy"
		}
		return "sell"
	}
}

func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		logger.WithField("value", s).Debug("could not parse float field")
		return nil
	}
	return &v
}
