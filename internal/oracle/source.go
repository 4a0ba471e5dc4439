package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// quote is a single source's raw reading before aggregation.
type quote struct {
	bid, ask, mid, volume24h float64
	source                   string
}

func newQuote(bid, ask, volume24h float64, source string) quote {
	return quote{bid: bid, ask: ask, mid: (bid + ask) / 2, volume24h: volume24h, source: source}
}

// source fetches one symbol's current bid/ask/volume from a single
// exchange. A failing fetch (network error, non-2xx, bad body) is a
// failure, not a panic; getPrice treats it as "this source did not answer".
type source interface {
	name() string
	fetch(ctx context.Context, client *http.Client, symbol string) (quote, error)
}

func sources(names []string) []source {
	all := map[string]source{
		"binance":  binanceSource{},
		"bybit":    bybitSource{},
		"coinbase": coinbaseSource{},
	}
	out := make([]source, 0, len(names))
	for _, n := range names {
		if s, ok := all[n]; ok {
			out = append(out, s)
		}
	}
	return out
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("oracle: unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type binanceSource struct{}

func (binanceSource) name() string { return "binance" }

func (binanceSource) fetch(ctx context.Context, client *http.Client, symbol string) (quote, error) {
	var resp struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	url := fmt.Sprintf("https://api.binance.com/api/v3/ticker/bookTicker?symbol=%sUSDT", symbol)
	if err := getJSON(ctx, client, url, &resp); err != nil {
		return quote{}, err
	}
	bid, err := strconv.ParseFloat(resp.BidPrice, 64)
	if err != nil {
		return quote{}, err
	}
	ask, err := strconv.ParseFloat(resp.AskPrice, 64)
	if err != nil {
		return quote{}, err
	}
	return newQuote(bid, ask, 0, "binance"), nil
}

type bybitSource struct{}

func (bybitSource) name() string { return "bybit" }

func (bybitSource) fetch(ctx context.Context, client *http.Client, symbol string) (quote, error) {
	var resp struct {
		Result struct {
			List []struct {
				Bid1Price string `json:"bid1Price"`
				Ask1Price string `json:"ask1Price"`
				Volume24h string `json:"volume24h"`
			} `json:"list"`
		} `json:"result"`
	}
	url := fmt.Sprintf("https://api.bybit.com/v5/market/tickers?category=linear&symbol=%sUSDT", symbol)
	if err := getJSON(ctx, client, url, &resp); err != nil {
		return quote{}, err
	}
	if len(resp.Result.List) == 0 {
		return quote{}, fmt.Errorf("oracle: bybit returned empty list for %s", symbol)
	}
	entry := resp.Result.List[0]
	bid, err := strconv.ParseFloat(entry.Bid1Price, 64)
	if err != nil {
		return quote{}, err
	}
	ask, err := strconv.ParseFloat(entry.Ask1Price, 64)
	if err != nil {
		return quote{}, err
	}
	volume, _ := strconv.ParseFloat(entry.Volume24h, 64)
	return newQuote(bid, ask, volume, "bybit"), nil
}

type coinbaseSource struct{}

func (coinbaseSource) name() string { return "coinbase" }

func (coinbaseSource) fetch(ctx context.Context, client *http.Client, symbol string) (quote, error) {
	var resp struct {
		Bid    string `json:"bid"`
		Ask    string `json:"ask"`
		Volume string `json:"volume"`
	}
	url := fmt.Sprintf("https://api.exchange.coinbase.com/products/%s-USD/ticker", symbol)
	if err := getJSON(ctx, client, url, &resp); err != nil {
		return quote{}, err
	}
	bid, err := strconv.ParseFloat(resp.Bid, 64)
	if err != nil {
		return quote{}, err
	}
	ask, err := strconv.ParseFloat(resp.Ask, 64)
	if err != nil {
		return quote{}, err
	}
	volume, _ := strconv.ParseFloat(resp.Volume, 64)
	return newQuote(bid, ask, volume, "coinbase"), nil
}

const sourceTimeout = 5 * time.Second
