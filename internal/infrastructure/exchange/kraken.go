package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

const KrakenBaseURL = "https://api.kraken.com"

// KrakenAdapter talks to the Kraken spot REST API.
type KrakenAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client

	// spotMinSize > 0 makes GetOpenPositions report base-asset holdings of at least
	// this size as a spot long.
	spotMinSize float64

	mu        sync.Mutex
	lastNonce int64
}

func NewKrakenAdapter(apiKey, apiSecret, baseURL string) *KrakenAdapter {
	if baseURL == "" {
		baseURL = KrakenBaseURL
	}
	return &KrakenAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (k *KrakenAdapter) Name() string { return "kraken" }

// EnableSpotPositions reports spot holdings of the base asset as long positions, so
// a restarted bot finds the position it bought before it stopped.
func (k *KrakenAdapter) EnableSpotPositions(minSize float64) {
	k.spotMinSize = minSize
}

// --- REST API ---

// nonce is strictly increasing across concurrent private calls.
func (k *KrakenAdapter) nonce() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := time.Now().UnixMilli()
	if n <= k.lastNonce {
		n = k.lastNonce + 1
	}
	k.lastNonce = n
	return n
}

// sign returns API-Sign: base64(HMAC-SHA512(path + SHA256(nonce + postdata), base64decode(secret))).
func (k *KrakenAdapter) sign(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(k.apiSecret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	sha := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (k *KrakenAdapter) public(ctx context.Context, op, method string, params url.Values, out interface{}) error {
	path := "/0/public/" + method
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path, nil)
	if err != nil {
		return domain.NewVenueError(domain.KindExchange, op, err)
	}
	return k.do(req, op, out)
}

func (k *KrakenAdapter) private(ctx context.Context, op, method string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	nonce := strconv.FormatInt(k.nonce(), 10)
	params.Set("nonce", nonce)
	body := params.Encode()

	path := "/0/private/" + method
	signature, err := k.sign(path, nonce, body)
	if err != nil {
		return domain.NewVenueError(domain.KindAuthentication, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path, strings.NewReader(body))
	if err != nil {
		return domain.NewVenueError(domain.KindExchange, op, err)
	}
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", signature)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return k.do(req, op, out)
}

func (k *KrakenAdapter) do(req *http.Request, op string, out interface{}) error {
	resp, err := k.client.Do(req)
	if err != nil {
		return domain.NewVenueError(classifyTransport(err), op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewVenueError(domain.KindNetwork, op, err)
	}
	if resp.StatusCode >= 500 {
		return domain.NewVenueError(domain.KindNetwork, op, fmt.Errorf("http %d: %s", resp.StatusCode, string(body)))
	}

	var env krakenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.NewVenueError(domain.KindExchange, op, fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err))
	}
	if len(env.Error) > 0 {
		msg := strings.Join(env.Error, "; ")
		return domain.NewVenueError(classifyKrakenError(env.Error[0]), op, errors.New(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return domain.NewVenueError(domain.KindExchange, op, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func classifyTransport(err error) domain.ErrorKind {
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return domain.KindNetwork
	}
	return domain.KindExchange
}

func classifyKrakenError(code string) domain.ErrorKind {
	switch {
	case strings.HasPrefix(code, "EAPI:Invalid key"),
		strings.HasPrefix(code, "EAPI:Invalid signature"),
		strings.HasPrefix(code, "EAPI:Invalid nonce"),
		strings.HasPrefix(code, "EGeneral:Permission denied"):
		return domain.KindAuthentication
	case strings.HasPrefix(code, "EOrder:Insufficient funds"):
		return domain.KindInsufficientBalance
	case strings.HasPrefix(code, "EService:"),
		strings.HasPrefix(code, "EGeneral:Internal error"),
		strings.HasPrefix(code, "EAPI:Rate limit"):
		return domain.KindNetwork
	case strings.HasPrefix(code, "EGeneral:Invalid arguments"),
		strings.HasPrefix(code, "EQuery:Unknown asset pair"):
		return domain.KindValidation
	default:
		return domain.KindExchange
	}
}

// krakenPair maps "ETH/USD" to the altname Kraken accepts in requests ("ETHUSD").
func krakenPair(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
}

// normalizeAsset maps Kraken asset codes (XXBT, ZUSD, XETH, ETH.F) to common tickers.
func normalizeAsset(code string) string {
	code = strings.SplitN(code, ".", 2)[0]
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		code = code[1:]
	}
	if code == "XBT" {
		return "BTC"
	}
	return code
}

func parseFloat(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	}
	return 0
}

// Ping reads the server time.
func (k *KrakenAdapter) Ping(ctx context.Context) error {
	var result struct {
		UnixTime int64 `json:"unixtime"`
	}
	return k.public(ctx, "ping", "Time", nil, &result)
}

// GetCandles returns up to limit candles, oldest first. Kraken returns the
// still-forming candle last; it is kept so the window matches what the
// strategy sees on the chart.
func (k *KrakenAdapter) GetCandles(ctx context.Context, symbol string, timeframe time.Duration, limit int) ([]domain.Candle, error) {
	minutes := int(timeframe / time.Minute)
	params := url.Values{}
	params.Set("pair", krakenPair(symbol))
	params.Set("interval", strconv.Itoa(minutes))
	params.Set("since", strconv.FormatInt(time.Now().Add(-time.Duration(limit+1)*timeframe).Unix(), 10))

	var result map[string]json.RawMessage
	if err := k.public(ctx, "get_candles", "OHLC", params, &result); err != nil {
		return nil, err
	}

	var rows [][]interface{}
	for key, raw := range result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, domain.NewVenueError(domain.KindExchange, "get_candles", err)
		}
		break
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		// [time, open, high, low, close, vwap, volume, count]
		if len(row) < 7 {
			continue
		}
		candles = append(candles, domain.Candle{
			Time:   int64(parseFloat(row[0])),
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  parseFloat(row[4]),
			Volume: parseFloat(row[6]),
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (k *KrakenAdapter) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	params := url.Values{}
	params.Set("pair", krakenPair(symbol))

	var result map[string]struct {
		Ask  []string `json:"a"`
		Bid  []string `json:"b"`
		Last []string `json:"c"`
	}
	if err := k.public(ctx, "get_ticker", "Ticker", params, &result); err != nil {
		return nil, err
	}
	for _, t := range result {
		ticker := &domain.Ticker{Symbol: symbol}
		if len(t.Ask) > 0 {
			ticker.Ask = parseFloat(t.Ask[0])
		}
		if len(t.Bid) > 0 {
			ticker.Bid = parseFloat(t.Bid[0])
		}
		if len(t.Last) > 0 {
			ticker.Last = parseFloat(t.Last[0])
		}
		return ticker, nil
	}
	return nil, domain.NewVenueError(domain.KindExchange, "get_ticker", fmt.Errorf("symbol %s not found", symbol))
}

// GetBalance returns free balances (total minus amounts held by open orders).
func (k *KrakenAdapter) GetBalance(ctx context.Context) (map[string]float64, error) {
	var result map[string]struct {
		Balance   string `json:"balance"`
		HoldTrade string `json:"hold_trade"`
	}
	if err := k.private(ctx, "get_balance", "BalanceEx", nil, &result); err != nil {
		return nil, err
	}

	free := make(map[string]float64, len(result))
	for code, b := range result {
		total, _ := decimal.NewFromString(b.Balance)
		held, _ := decimal.NewFromString(b.HoldTrade)
		asset := normalizeAsset(code)
		free[asset] += total.Sub(held).InexactFloat64()
	}
	return free, nil
}

func (k *KrakenAdapter) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	params := url.Values{}
	params.Set("pair", krakenPair(order.Symbol))
	params.Set("type", string(order.Side))
	params.Set("ordertype", string(order.Type))
	params.Set("volume", decimal.NewFromFloat(order.Size).String())
	if order.Type == domain.OrderTypeLimit {
		params.Set("price", decimal.NewFromFloat(order.Price).String())
	}
	if order.ClientID != "" {
		params.Set("cl_ord_id", order.ClientID)
	}

	var result struct {
		TxID []string `json:"txid"`
	}
	if err := k.private(ctx, "place_order", "AddOrder", params, &result); err != nil {
		return nil, err
	}
	if len(result.TxID) == 0 {
		return nil, domain.NewVenueError(domain.KindExchange, "place_order", errors.New("no txid in response"))
	}

	placed := *order
	placed.ID = result.TxID[0]
	placed.Exchange = k.Name()
	placed.Status = domain.OrderStatusOpen
	return &placed, nil
}

type krakenOrder struct {
	Status  string  `json:"status"`
	ClOrdID string  `json:"cl_ord_id"`
	Vol     string  `json:"vol"`
	VolExec string  `json:"vol_exec"`
	Price   string  `json:"price"` // average fill price
	OpenTm  float64 `json:"opentm"`
	Descr   struct {
		Pair      string `json:"pair"`
		Type      string `json:"type"`
		OrderType string `json:"ordertype"`
		Price     string `json:"price"`
	} `json:"descr"`
}

func (o krakenOrder) status() domain.OrderStatus {
	switch o.Status {
	case "closed":
		return domain.OrderStatusClosed
	case "canceled", "expired":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusOpen
	}
}

func (k *KrakenAdapter) GetOrder(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
	params := url.Values{}
	params.Set("txid", orderID)

	var result map[string]krakenOrder
	if err := k.private(ctx, "get_order", "QueryOrders", params, &result); err != nil {
		return nil, err
	}
	raw, ok := result[orderID]
	if !ok {
		return nil, domain.NewVenueError(domain.KindExchange, "get_order", fmt.Errorf("order %s not found", orderID))
	}

	sec := int64(raw.OpenTm)
	return &domain.Order{
		ID:         orderID,
		ClientID:   raw.ClOrdID,
		Exchange:   k.Name(),
		Symbol:     symbol,
		Side:       domain.OrderSide(raw.Descr.Type),
		Type:       domain.OrderType(raw.Descr.OrderType),
		Status:     raw.status(),
		Size:       parseFloat(raw.Vol),
		Price:      parseFloat(raw.Descr.Price),
		FilledSize: parseFloat(raw.VolExec),
		AvgPrice:   parseFloat(raw.Price),
		CreatedAt:  time.Unix(sec, int64((raw.OpenTm-float64(sec))*1e9)),
	}, nil
}

func (k *KrakenAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("txid", orderID)
	return k.private(ctx, "cancel_order", "CancelOrder", params, nil)
}

// GetOpenPositions lists margin positions on the pair. With EnableSpotPositions a
// base-asset holding is reported as a long when no margin long exists.
func (k *KrakenAdapter) GetOpenPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	params := url.Values{}
	params.Set("docalcs", "true")

	var result map[string]struct {
		Pair string `json:"pair"`
		Type string `json:"type"`
		Cost string `json:"cost"`
		Vol  string `json:"vol"`
		Net  string `json:"net"`
	}
	if err := k.private(ctx, "get_positions", "OpenPositions", params, &result); err != nil {
		return nil, err
	}

	// Aggregate per side; several position ids can belong to one logical position.
	type agg struct{ cost, vol decimal.Decimal }
	bySide := map[domain.Side]*agg{}
	want := krakenPair(symbol)
	for _, p := range result {
		if !strings.EqualFold(p.Pair, want) && normalizePair(p.Pair) != want {
			continue
		}
		side := domain.SideLong
		if p.Type == "sell" {
			side = domain.SideShort
		}
		a, ok := bySide[side]
		if !ok {
			a = &agg{}
			bySide[side] = a
		}
		cost, _ := decimal.NewFromString(p.Cost)
		vol, _ := decimal.NewFromString(p.Vol)
		a.cost = a.cost.Add(cost)
		a.vol = a.vol.Add(vol)
	}

	sides := make([]domain.Side, 0, len(bySide))
	for s := range bySide {
		sides = append(sides, s)
	}
	sort.Slice(sides, func(i, j int) bool { return sides[i] < sides[j] })

	var positions []*domain.Position
	for _, side := range sides {
		a := bySide[side]
		if !a.vol.IsPositive() {
			continue
		}
		positions = append(positions, &domain.Position{
			Exchange:   k.Name(),
			Symbol:     symbol,
			Side:       side,
			Size:       a.vol.InexactFloat64(),
			EntryPrice: a.cost.Div(a.vol).InexactFloat64(),
		})
	}

	if _, hasLong := bySide[domain.SideLong]; k.spotMinSize > 0 && !hasLong {
		spot, err := k.spotPosition(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if spot != nil {
			positions = append(positions, spot)
		}
	}
	return positions, nil
}

// spotPosition reports the total base-asset balance, including amounts held by open
// orders, priced at the most recent buy on the pair or at the last trade price.
func (k *KrakenAdapter) spotPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	var balances map[string]struct {
		Balance string `json:"balance"`
	}
	if err := k.private(ctx, "get_positions", "BalanceEx", nil, &balances); err != nil {
		return nil, err
	}
	base, _ := splitSymbol(symbol)
	var total decimal.Decimal
	for code, b := range balances {
		if normalizeAsset(code) != base {
			continue
		}
		v, _ := decimal.NewFromString(b.Balance)
		total = total.Add(v)
	}
	if total.LessThan(decimal.NewFromFloat(k.spotMinSize)) {
		return nil, nil
	}

	entry, err := k.lastBuyPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if entry <= 0 {
		t, err := k.GetTicker(ctx, symbol)
		if err != nil {
			return nil, err
		}
		entry = t.Last
	}
	return &domain.Position{
		Exchange:   k.Name(),
		Symbol:     symbol,
		Side:       domain.SideLong,
		Size:       total.InexactFloat64(),
		EntryPrice: entry,
	}, nil
}

// lastBuyPrice returns the price of the newest buy fill on the pair, or 0 when the
// recent trade history has none.
func (k *KrakenAdapter) lastBuyPrice(ctx context.Context, symbol string) (float64, error) {
	var result struct {
		Trades map[string]struct {
			Pair  string  `json:"pair"`
			Type  string  `json:"type"`
			Price string  `json:"price"`
			Time  float64 `json:"time"`
		} `json:"trades"`
	}
	if err := k.private(ctx, "get_positions", "TradesHistory", url.Values{"type": {"all"}}, &result); err != nil {
		return 0, err
	}

	want := krakenPair(symbol)
	var price, newest float64
	for _, tr := range result.Trades {
		if tr.Type != "buy" || (!strings.EqualFold(tr.Pair, want) && normalizePair(tr.Pair) != want) {
			continue
		}
		if tr.Time > newest {
			newest = tr.Time
			price = parseFloat(tr.Price)
		}
	}
	return price, nil
}

// normalizePair turns "XETHZUSD" into "ETHUSD".
func normalizePair(pair string) string {
	if len(pair) == 8 {
		return normalizeAsset(pair[:4]) + normalizeAsset(pair[4:])
	}
	return pair
}
