package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/scout/backend/internal/contracts"
)

// MarketRepository implements contracts.MarketDataProvider over the collector's data.* tables
// ⭐ SSOT: 시장 데이터 읽기는 여기서만 (쓰기는 수집기 담당)
type MarketRepository struct {
	pool *pgxpool.Pool
}

// NewMarketRepository creates a new market repository
func NewMarketRepository(pool *pgxpool.Pool) *MarketRepository {
	return &MarketRepository{pool: pool}
}

// ListActiveStocks returns every active stock ordered by code
func (r *MarketRepository) ListActiveStocks(ctx context.Context) ([]contracts.StockInfo, error) {
	query := `
		SELECT code, name, COALESCE(market, ''), COALESCE(sector, '')
		FROM data.stocks
		WHERE status = 'active'
		ORDER BY code
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active stocks: %w", err)
	}
	defer rows.Close()

	var stocks []contracts.StockInfo
	for rows.Next() {
		var s contracts.StockInfo
		if err := rows.Scan(&s.Code, &s.Name, &s.Market, &s.Sector); err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		stocks = append(stocks, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return stocks, nil
}

// GetStock returns one stock master row
func (r *MarketRepository) GetStock(ctx context.Context, code string) (*contracts.StockInfo, error) {
	query := `
		SELECT code, name, COALESCE(market, ''), COALESCE(sector, '')
		FROM data.stocks
		WHERE code = $1
	`

	var s contracts.StockInfo
	err := r.pool.QueryRow(ctx, query, code).Scan(&s.Code, &s.Name, &s.Market, &s.Sector)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &contracts.DataError{Code: code, Field: "stock", Message: "unknown stock code"}
	}
	if err != nil {
		return nil, fmt.Errorf("get stock %s: %w", code, err)
	}
	return &s, nil
}

// GetBars returns daily bars in [from, to], oldest first
func (r *MarketRepository) GetBars(ctx context.Context, code string, from, to time.Time) ([]contracts.Bar, error) {
	return r.queryBars(ctx, code, from, to)
}

// GetIndexBars returns index bars. Index series are stored in data.daily_prices under the index code.
func (r *MarketRepository) GetIndexBars(ctx context.Context, indexCode string, from, to time.Time) ([]contracts.Bar, error) {
	return r.queryBars(ctx, indexCode, from, to)
}

func (r *MarketRepository) queryBars(ctx context.Context, code string, from, to time.Time) ([]contracts.Bar, error) {
	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE stock_code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, code, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars for %s: %w", code, err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		var open, high, low, closePrice int64
		if err := rows.Scan(&b.Date, &open, &high, &low, &closePrice, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Open, b.High, b.Low, b.Close = float64(open), float64(high), float64(low), float64(closePrice)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// GetFundamentals returns quarterly rows reported in [from, to], oldest first
func (r *MarketRepository) GetFundamentals(ctx context.Context, code string, from, to time.Time) ([]contracts.Fundamental, error) {
	query := `
		SELECT report_date,
		       COALESCE(per, 0)::float8, COALESCE(pbr, 0)::float8, COALESCE(roe, 0)::float8
		FROM data.fundamentals
		WHERE stock_code = $1 AND report_date BETWEEN $2 AND $3
		ORDER BY report_date ASC
	`

	rows, err := r.pool.Query(ctx, query, code, from, to)
	if err != nil {
		return nil, fmt.Errorf("query fundamentals for %s: %w", code, err)
	}
	defer rows.Close()

	var out []contracts.Fundamental
	for rows.Next() {
		var f contracts.Fundamental
		if err := rows.Scan(&f.ReportDate, &f.PER, &f.PBR, &f.ROE); err != nil {
			return nil, fmt.Errorf("scan fundamental: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFlows returns daily investor net-buy values, oldest first
func (r *MarketRepository) GetFlows(ctx context.Context, code string, from, to time.Time) ([]contracts.Flow, error) {
	query := `
		SELECT trade_date, COALESCE(foreign_net_value, 0), COALESCE(inst_net_value, 0)
		FROM data.investor_flow
		WHERE stock_code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, code, from, to)
	if err != nil {
		return nil, fmt.Errorf("query flows for %s: %w", code, err)
	}
	defer rows.Close()

	var out []contracts.Flow
	for rows.Next() {
		var f contracts.Flow
		if err := rows.Scan(&f.Date, &f.ForeignNet, &f.InstNet); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetMarketCap returns the latest market cap (won) on or before asOf. Zero means unknown.
func (r *MarketRepository) GetMarketCap(ctx context.Context, code string, asOf time.Time) (float64, error) {
	query := `
		SELECT market_cap
		FROM data.market_cap
		WHERE stock_code = $1 AND trade_date <= $2
		ORDER BY trade_date DESC
		LIMIT 1
	`

	var marketCap int64
	err := r.pool.QueryRow(ctx, query, code, asOf).Scan(&marketCap)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get market cap for %s: %w", code, err)
	}
	return float64(marketCap), nil
}
