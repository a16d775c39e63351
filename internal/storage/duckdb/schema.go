package duckdb

// Table creation statements. Timestamps are stored as UTC instants.

const createRealizedReturnsTable = `
CREATE TABLE IF NOT EXISTS realized_returns (
    symbol VARCHAR NOT NULL,
    as_of TIMESTAMP NOT NULL,
    horizon_minutes INTEGER NOT NULL,
    price_start DOUBLE NOT NULL,
    price_end DOUBLE NOT NULL,
    realized_return DOUBLE NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (symbol, as_of, horizon_minutes)
);
`

const createBacktestRowsTable = `
CREATE TABLE IF NOT EXISTS backtest_rows (
    row_id VARCHAR PRIMARY KEY,
    model_id VARCHAR NOT NULL,
    symbol VARCHAR NOT NULL,
    as_of TIMESTAMP NOT NULL,
    horizon_minutes INTEGER NOT NULL,
    expected_return DOUBLE NOT NULL,
    predicted_direction VARCHAR NOT NULL,
    confidence DOUBLE NOT NULL,
    sample_size INTEGER NOT NULL,
    realized_return DOUBLE,
    actual_direction VARCHAR,
    direction_correct BOOLEAN,
    regime VARCHAR NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_rows_model ON backtest_rows(model_id, as_of);
`
