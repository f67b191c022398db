package config

import "time"

type Config struct {
	Telegram TelegramConf `json:"telegram"`
	Binance  BinanceConf  `json:"binance"`
	Arena    ArenaConf    `json:"arena"`
	Redis    RedisConf    `json:"redis"`
	Security SecurityConf `json:"security"`
}

type TelegramConf struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}

type BinanceConf struct {
	Enabled  bool   `json:"enabled"`   // 是否连接真实交易所，false时使用模拟交易所
	ProxyURL string `json:"proxy_url"` // 代理地址，例如: http://127.0.0.1:7890
	Testnet  bool   `json:"testnet"`   // 是否使用测试网
}

type ArenaConf struct {
	TickSeconds               int      `json:"tick_seconds"`                 // 评分周期（秒），默认5
	EndingSoonSeconds         int      `json:"ending_soon_seconds"`          // 即将结束提醒阈值（秒），默认30
	WaitingTimeoutMinutes     int      `json:"waiting_timeout_minutes"`      // 等待对手超时（分钟），默认30
	SweepSeconds              int      `json:"sweep_seconds"`                // 过期对战清理周期（秒），默认60
	HistoryLimit              int      `json:"history_limit"`                // 成交历史每页条数，默认100
	Concurrency               int      `json:"concurrency"`                  // 并发处理数，默认8
	ExternalTradeGraceSeconds int      `json:"external_trade_grace_seconds"` // 外部成交判定宽限期（秒），默认60
	FinalizeGraceSeconds      int      `json:"finalize_grace_seconds"`       // 结算前成交检测失败时最多推迟（秒），默认120
	Symbols                   []string `json:"symbols"`                      // 允许交易的币种，如 ["BTCUSDT", "ETHUSDT"]
}

type RedisConf struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"` // 广播频道前缀，默认 tfc
}

type SecurityConf struct {
	SecretKey string `json:"secret_key"` // 32字节 hex，用于加密交易所 API Secret
}

// TickInterval 评分周期
func (c ArenaConf) TickInterval() time.Duration {
	if c.TickSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TickSeconds) * time.Second
}

// EndingSoonThreshold 即将结束提醒阈值
func (c ArenaConf) EndingSoonThreshold() time.Duration {
	if c.EndingSoonSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.EndingSoonSeconds) * time.Second
}

// WaitingTimeout 等待对手超时
func (c ArenaConf) WaitingTimeout() time.Duration {
	if c.WaitingTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.WaitingTimeoutMinutes) * time.Minute
}

// SweepInterval 过期对战清理周期
func (c ArenaConf) SweepInterval() time.Duration {
	if c.SweepSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepSeconds) * time.Second
}

// ExternalTradeGrace 外部成交判定宽限期
func (c ArenaConf) ExternalTradeGrace() time.Duration {
	if c.ExternalTradeGraceSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.ExternalTradeGraceSeconds) * time.Second
}

// FinalizeGrace 结算前成交检测失败时允许推迟的时长
func (c ArenaConf) FinalizeGrace() time.Duration {
	if c.FinalizeGraceSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.FinalizeGraceSeconds) * time.Second
}

// GetHistoryLimit 成交历史每页条数
func (c ArenaConf) GetHistoryLimit() int {
	if c.HistoryLimit <= 0 {
		return 100
	}
	return c.HistoryLimit
}

// GetConcurrency 并发处理数
func (c ArenaConf) GetConcurrency() int {
	if c.Concurrency <= 0 {
		return 8
	}
	return c.Concurrency
}

// GetSymbols 允许交易的币种
func (c ArenaConf) GetSymbols() []string {
	if len(c.Symbols) == 0 {
		return []string{"BTCUSDT", "ETHUSDT"}
	}
	return c.Symbols
}

// GetChannel 广播频道前缀
func (c RedisConf) GetChannel() string {
	if c.Channel == "" {
		return "tfc"
	}
	return c.Channel
}
