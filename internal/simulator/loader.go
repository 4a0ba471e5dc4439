package simulator

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nkassim/perpmm/internal/domain"
)

const defaultDepth = 50.0

// LoadCSV reads HistoricalBars from a CSV stream with header
// timestamp,open,high,low,close,volume[,bidDepth,askDepth]. Missing depth
// columns default to 50.
func LoadCSV(r io.Reader) ([]domain.HistoricalBar, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("simulator: read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	var bars []domain.HistoricalBar
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("simulator: read csv row: %w", err)
		}

		bar, err := parseCSVRow(row, col)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseCSVRow(row []string, col map[string]int) (domain.HistoricalBar, error) {
	field := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}
	parseFloat := func(name string, fallback float64) (float64, error) {
		v, ok := field(name)
		if !ok || v == "" {
			return fallback, nil
		}
		return strconv.ParseFloat(v, 64)
	}

	tsStr, ok := field("timestamp")
	if !ok {
		return domain.HistoricalBar{}, fmt.Errorf("simulator: missing timestamp column")
	}
	ts, err := parseTimestamp(tsStr)
	if err != nil {
		return domain.HistoricalBar{}, err
	}

	open, err := parseFloat("open", 0)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	high, err := parseFloat("high", 0)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	low, err := parseFloat("low", 0)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	closePrice, err := parseFloat("close", 0)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	volume, err := parseFloat("volume", 0)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	bidDepth, err := parseFloat("bidDepth", defaultDepth)
	if err != nil {
		return domain.HistoricalBar{}, err
	}
	askDepth, err := parseFloat("askDepth", defaultDepth)
	if err != nil {
		return domain.HistoricalBar{}, err
	}

	return domain.HistoricalBar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		BidDepth:  bidDepth,
		AskDepth:  askDepth,
	}, nil
}

func parseTimestamp(v string) (time.Time, error) {
	if unixMillis, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(unixMillis), nil
	}
	return time.Parse(time.RFC3339, v)
}

type jsonBar struct {
	Timestamp int64    `json:"timestamp"`
	Open      float64  `json:"open"`
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Close     float64  `json:"close"`
	Volume    float64  `json:"volume"`
	BidDepth  *float64 `json:"bidDepth"`
	AskDepth  *float64 `json:"askDepth"`
}

// LoadJSON reads HistoricalBars from a JSON array. Missing bidDepth/
// askDepth fields default to 50.
func LoadJSON(r io.Reader) ([]domain.HistoricalBar, error) {
	var raw []jsonBar
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("simulator: decode json bars: %w", err)
	}

	bars := make([]domain.HistoricalBar, 0, len(raw))
	for _, b := range raw {
		bidDepth := defaultDepth
		if b.BidDepth != nil {
			bidDepth = *b.BidDepth
		}
		askDepth := defaultDepth
		if b.AskDepth != nil {
			askDepth = *b.AskDepth
		}
		bars = append(bars, domain.HistoricalBar{
			Timestamp: time.UnixMilli(b.Timestamp),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			BidDepth:  bidDepth,
			AskDepth:  askDepth,
		})
	}
	return bars, nil
}
