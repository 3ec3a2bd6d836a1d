package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	proposal_id TEXT NOT NULL,
	underlying TEXT NOT NULL,
	structure TEXT NOT NULL,
	regime TEXT NOT NULL,
	lots INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	commission REAL NOT NULL,
	realized_pl REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	margin_used REAL NOT NULL,
	hwm REAL NOT NULL,
	drawdown REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS regimes (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	label TEXT NOT NULL,
	abnormal_prob REAL NOT NULL,
	confluence INTEGER NOT NULL,
	alarm INTEGER NOT NULL,
	degraded INTEGER NOT NULL,
	dc_events INTEGER NOT NULL,
	breaker_mode TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	underlying TEXT NOT NULL,
	dataset TEXT NOT NULL,
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL NOT NULL,
	max_dd_pct REAL NOT NULL,
	sharpe REAL NOT NULL,
	sortino REAL NOT NULL,
	dc_events INTEGER NOT NULL,
	alarms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(run_id, time);
CREATE INDEX IF NOT EXISTS idx_regimes_time ON regimes(run_id, time);
`
