package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polysignal/internal/domain"
)

// Config es la configuración completa del motor de señales.
type Config struct {
	Scanner    ScannerConfig    `yaml:"scanner"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Wallets    WalletsConfig    `yaml:"wallets"`
	Learning   LearningConfig   `yaml:"learning"`
	Settlement SettlementConfig `yaml:"settlement"`
	API        APIConfig        `yaml:"api"`
	Store      StoreConfig      `yaml:"store"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ScannerConfig controla el loop de escaneo y los filtros por defecto.
type ScannerConfig struct {
	IntervalSeconds    int      `yaml:"interval_seconds"`
	HoursBack          float64  `yaml:"hours_back"`
	MinGapSeconds      int      `yaml:"min_gap_seconds"` // guard de last run entre procesos
	FeedTimeoutSeconds int      `yaml:"feed_timeout_seconds"`
	MinScore           float64  `yaml:"min_score"`
	MinVolume          float64  `yaml:"min_volume"`
	MarketTypes        []string `yaml:"market_types"`
	IncludeHidden      bool     `yaml:"include_hidden"`
	Limit              int      `yaml:"limit"`
	SkipSettlement     bool     `yaml:"skip_settlement"` // no barrer pendientes tras cada scan
}

// ScoringConfig ajusta la agregación, el scorer y el ensemble.
type ScoringConfig struct {
	MinTradeUSD         float64                 `yaml:"min_trade_usd"`
	GamblingKeywords    []string                `yaml:"gambling_keywords"`
	MarketTypes         []domain.MarketTypeRule `yaml:"market_types"`
	FadeFactors         []string                `yaml:"fade_factors"`
	FadeWinRate         float64                 `yaml:"fade_win_rate"`
	MinSamplesForWeight int                     `yaml:"min_samples_for_weight"`
	MultiplierMin       float64                 `yaml:"multiplier_min"`
	MultiplierMax       float64                 `yaml:"multiplier_max"`
	WinnerBonus         float64                 `yaml:"winner_bonus"`
	DefaultEventUTC     *int                    `yaml:"default_event_utc"` // hora UTC de inicio si solo hay fecha
}

// WalletsConfig ajusta el ledger de reputación.
type WalletsConfig struct {
	Tiers               []domain.TierThreshold `yaml:"tiers"`
	WinningWinRate      float64                `yaml:"winning_win_rate"`
	EvictWinRate        float64                `yaml:"evict_win_rate"`
	KeepVolume          float64                `yaml:"keep_volume"`
	DuplicateAmount     float64                `yaml:"duplicate_amount"`
	WinnersCacheSeconds int                    `yaml:"winners_cache_seconds"`
}

// LearningConfig ajusta la promoción de patrones.
type LearningConfig struct {
	FullConfidenceSamples int     `yaml:"full_confidence_samples"`
	PromoteMinSamples     int     `yaml:"promote_min_samples"`
	PromoteHighWinRate    float64 `yaml:"promote_high_win_rate"`
	PromoteLowWinRate     float64 `yaml:"promote_low_win_rate"`
}

// SettlementConfig controla la resolución de señales.
type SettlementConfig struct {
	WinPrice                  float64 `yaml:"win_price"`
	LossPrice                 float64 `yaml:"loss_price"`
	UnknownAfterEventEndHours float64 `yaml:"unknown_after_event_end_hours"`
	UnknownAfterQuietHours    float64 `yaml:"unknown_after_quiet_hours"`
	DefaultEventDurationHours float64 `yaml:"default_event_duration_hours"`
	PendingTTLDays            int     `yaml:"pending_ttl_days"`
	SettledTTLDays            int     `yaml:"settled_ttl_days"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	DataBase  string `yaml:"data_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StoreConfig elige el backend del KV.
type StoreConfig struct {
	Backend       string `yaml:"backend"` // sqlite | redis
	DSN           string `yaml:"dsn"`     // ruta al archivo SQLite, o ":memory:"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// KafkaConfig activa la publicación de eventos si hay brokers.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled devuelve true si hay al menos un broker configurado.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// MetricsConfig controla el endpoint de Prometheus. Addr vacío lo desactiva.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalSeconds) * time.Second
}

// MinGap devuelve la separación mínima entre scans.
func (c *Config) MinGap() time.Duration {
	return time.Duration(c.Scanner.MinGapSeconds) * time.Second
}

// FeedTimeout devuelve el timeout del fetch de trades.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Scanner.FeedTimeoutSeconds) * time.Second
}

// Rules construye el juego de reglas inmutable que se pasa a cada componente.
// Parte de domain.DefaultRules y sobreescribe lo configurado.
func (c *Config) Rules() domain.Rules {
	r := domain.DefaultRules()

	s := c.Scoring
	if s.MinTradeUSD > 0 {
		r.Aggregation.MinSizeUSD = s.MinTradeUSD
	}
	if len(s.GamblingKeywords) > 0 {
		r.Aggregation.GamblingKeywords = s.GamblingKeywords
	}
	if len(s.MarketTypes) > 0 {
		r.Aggregation.MarketTypes = s.MarketTypes
	}
	if len(s.FadeFactors) > 0 {
		r.Scoring.FadeFactors = s.FadeFactors
	}
	if s.FadeWinRate > 0 {
		r.Scoring.FadeWinRate = s.FadeWinRate
	}
	if s.MinSamplesForWeight > 0 {
		r.Scoring.MinSamplesForWeight = s.MinSamplesForWeight
	}
	if s.MultiplierMin > 0 {
		r.Scoring.MultiplierMin = s.MultiplierMin
	}
	if s.MultiplierMax > 0 {
		r.Scoring.MultiplierMax = s.MultiplierMax
	}
	if s.WinnerBonus > 0 {
		r.Scoring.WinnerBonus = s.WinnerBonus
	}
	if s.DefaultEventUTC != nil {
		r.Scoring.DefaultEventUTC = *s.DefaultEventUTC
	}

	w := c.Wallets
	if len(w.Tiers) > 0 {
		r.Wallets.Tiers = w.Tiers
	}
	if w.WinningWinRate > 0 {
		r.Wallets.WinningWinRate = w.WinningWinRate
	}
	if w.EvictWinRate > 0 {
		r.Wallets.EvictWinRate = w.EvictWinRate
	}
	if w.KeepVolume > 0 {
		r.Wallets.KeepVolume = w.KeepVolume
	}
	if w.DuplicateAmount > 0 {
		r.Wallets.DuplicateAmount = w.DuplicateAmount
	}
	if w.WinnersCacheSeconds > 0 {
		r.Wallets.WinnersCacheTTL = time.Duration(w.WinnersCacheSeconds) * time.Second
	}

	l := c.Learning
	if l.FullConfidenceSamples > 0 {
		r.Learning.FullConfidenceSamples = l.FullConfidenceSamples
	}
	if l.PromoteMinSamples > 0 {
		r.Learning.PromoteMinSamples = l.PromoteMinSamples
	}
	if l.PromoteHighWinRate > 0 {
		r.Learning.PromoteHighWinRate = l.PromoteHighWinRate
	}
	if l.PromoteLowWinRate > 0 {
		r.Learning.PromoteLowWinRate = l.PromoteLowWinRate
	}

	st := c.Settlement
	if st.WinPrice > 0 {
		r.Settlement.WinPrice = st.WinPrice
	}
	if st.LossPrice > 0 {
		r.Settlement.LossPrice = st.LossPrice
	}
	if st.UnknownAfterEventEndHours > 0 {
		r.Settlement.UnknownAfterEventEnd = hours(st.UnknownAfterEventEndHours)
	}
	if st.UnknownAfterQuietHours > 0 {
		r.Settlement.UnknownAfterQuiet = hours(st.UnknownAfterQuietHours)
	}
	if st.DefaultEventDurationHours > 0 {
		r.Settlement.DefaultEventDuration = hours(st.DefaultEventDurationHours)
	}
	if st.PendingTTLDays > 0 {
		r.Settlement.PendingTTL = time.Duration(st.PendingTTLDays) * 24 * time.Hour
	}
	if st.SettledTTLDays > 0 {
		r.Settlement.SettledTTL = time.Duration(st.SettledTTLDays) * 24 * time.Hour
	}
	return r
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.RedisDB = db
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Scanner.IntervalSeconds <= 0 {
		cfg.Scanner.IntervalSeconds = 300
	}
	if cfg.Scanner.HoursBack <= 0 {
		cfg.Scanner.HoursBack = 6
	}
	if cfg.Scanner.MinGapSeconds <= 0 {
		cfg.Scanner.MinGapSeconds = 120
	}
	if cfg.Scanner.FeedTimeoutSeconds <= 0 {
		cfg.Scanner.FeedTimeoutSeconds = 45
	}
	if cfg.Scanner.MinScore <= 0 {
		cfg.Scanner.MinScore = 40
	}
	if cfg.Scanner.Limit <= 0 {
		cfg.Scanner.Limit = 50
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "polysignal.db"
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Store.RedisPrefix == "" {
		cfg.Store.RedisPrefix = "polysignal:"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "polysignal.signals"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Settlement.LossPrice > 0 && c.Settlement.WinPrice > 0 && c.Settlement.LossPrice >= c.Settlement.WinPrice {
		return fmt.Errorf("settlement: loss_price %.2f must be below win_price %.2f", c.Settlement.LossPrice, c.Settlement.WinPrice)
	}
	return nil
}
