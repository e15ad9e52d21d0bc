package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultDataDir       = "."
	defaultListenAddress = ":8080"

	defaultImagesDir      = "viral_images"
	defaultScreenshotsDir = "viral_screenshots"
	defaultOutputDir      = "viral_output"

	defaultMaxImages           = 30
	defaultTimeoutSeconds      = 30
	defaultTierTimeoutSeconds  = 15
	defaultPipelineConcurrency = 3
	defaultSearchParallelism   = 4
	defaultBroadenThreshold    = 15
)

// FatalConfigError marks the only class of error the engine propagates to
// its caller. Everything else degrades and ends up in the manifest.
type FatalConfigError struct {
	Field  string
	Reason string
}

func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("fatal configuration error: %s: %s", e.Field, e.Reason)
}

// IsFatal reports whether err is (or wraps) a FatalConfigError.
func IsFatal(err error) bool {
	var f *FatalConfigError
	return errors.As(err, &f)
}

// EngineConfig carries everything the engine and its providers need. The
// components unmarshal from this configuration to their own typed configs.
type EngineConfig map[string]any

// ReadConfig assembles the configuration from the environment, loading
// $DATA_DIR/.env first when present.
func ReadConfig() EngineConfig {
	ec := EngineConfig{}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	ec["data_dir"] = dataDir

	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		logrus.Debugf("No env file loaded from %s: %v", dataDir, err)
	}

	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	ec["log_level"] = level.String()
	SetLogLevel(level)

	ec["images_dir"] = envString("IMAGES_DIR", defaultImagesDir)
	ec["screenshots_dir"] = envString("SCREENSHOTS_DIR", defaultScreenshotsDir)
	ec["output_dir"] = envString("OUTPUT_DIR", defaultOutputDir)

	ec["max_images"] = envNumeric("MAX_IMAGES", defaultMaxImages)
	ec["min_engagement"] = envNumericFloat("MIN_ENGAGEMENT", 0)
	ec["timeout_seconds"] = envNumeric("TIMEOUT_SECONDS", defaultTimeoutSeconds)
	ec["tier_timeout_seconds"] = envNumeric("TIER_TIMEOUT_SECONDS", defaultTierTimeoutSeconds)
	ec["pipeline_concurrency"] = envNumeric("PIPELINE_CONCURRENCY", defaultPipelineConcurrency)
	ec["search_parallelism"] = envNumeric("SEARCH_PARALLELISM", defaultSearchParallelism)
	ec["broaden_threshold"] = envInt("BROADEN_THRESHOLD", defaultBroadenThreshold)
	ec["headless"] = os.Getenv("HEADLESS") != "false"

	ec["listen_address"] = envString("LISTEN_ADDRESS", defaultListenAddress)
	ec["max_jobs"] = envInt("MAX_JOBS", 10)
	ec["fast_queue_size"] = envInt("FAST_QUEUE_SIZE", 1000)
	ec["slow_queue_size"] = envInt("SLOW_QUEUE_SIZE", 5000)
	ec["stats_buf_size"] = uint(envInt("STATS_BUF_SIZE", 128))
	ec["result_cache_max_size"] = envInt("RESULT_CACHE_MAX_SIZE", 1000)
	ec["result_cache_max_age_seconds"] = time.Duration(envInt("RESULT_CACHE_MAX_AGE_SECONDS", 600)) * time.Second
	ec["job_timeout_seconds"] = time.Duration(envInt("JOB_TIMEOUT_SECONDS", 300)) * time.Second
	ec["profiling_enabled"] = os.Getenv("ENABLE_PPROF") == "true"

	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		ec["api_key"] = apiKey
	}

	ec["serper_api_keys"] = envStringSlice("SERPER_API_KEYS")
	ec["google_cse_keys"] = envStringSlice("GOOGLE_CSE_KEYS")
	ec["apify_api_keys"] = envStringSlice("APIFY_API_KEYS")
	ec["twitter_accounts"] = envStringSlice("TWITTER_ACCOUNTS")
	ec["twitter_skip_login_verification"] = os.Getenv("TWITTER_SKIP_LOGIN_VERIFICATION") == "true"
	ec["media_allowed_hosts"] = envStringSlice("MEDIA_ALLOWED_HOSTS")

	ec["sessions_db"] = envString("SESSIONS_DB", "")
	ec["credentials_file"] = envString("CREDENTIALS_FILE", "")
	ec["seal_keys"] = envStringSlice("SEAL_KEYS")

	ec["score_comment_weight"] = envFloat("SCORE_COMMENT_WEIGHT", 5)
	ec["score_share_weight"] = envFloat("SCORE_SHARE_WEIGHT", 10)
	ec["score_bonus_threshold"] = envFloat("SCORE_BONUS_THRESHOLD", 100)

	return ec
}

// Validate checks the parts of the configuration that make the engine
// unusable when wrong. It creates the working directories as a side effect,
// so a failure here means no session could ever persist anything.
func (ec EngineConfig) Validate() error {
	for _, key := range []string{"images_dir", "screenshots_dir", "output_dir"} {
		dir := ec.GetString(key, "")
		if dir == "" {
			return &FatalConfigError{Field: key, Reason: "directory must not be empty"}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &FatalConfigError{Field: key, Reason: fmt.Sprintf("cannot create %s: %v", dir, err)}
		}
	}

	for _, key := range []string{"pipeline_concurrency", "search_parallelism", "max_images"} {
		v, err := ec.GetInt(key, 0)
		if err != nil {
			return &FatalConfigError{Field: key, Reason: err.Error()}
		}
		if v < 1 {
			return &FatalConfigError{Field: key, Reason: fmt.Sprintf("must be at least 1, got %d", v)}
		}
	}

	for _, key := range []string{"timeout_seconds", "tier_timeout_seconds"} {
		v, err := ec.GetInt(key, 0)
		if err != nil {
			return &FatalConfigError{Field: key, Reason: err.Error()}
		}
		if v < 1 {
			return &FatalConfigError{Field: key, Reason: fmt.Sprintf("must be at least 1 second, got %d", v)}
		}
	}

	// A garbled threshold would silently mark everything viral, so it gets
	// the same treatment as the int knobs.
	if raw, ok := ec["min_engagement"].(string); ok {
		return &FatalConfigError{Field: "min_engagement", Reason: fmt.Sprintf("value %q cannot be converted to number", raw)}
	}

	return nil
}

// Unmarshal round-trips the configuration into the supplied typed config.
func (ec EngineConfig) Unmarshal(v any) error {
	data, err := json.Marshal(ec)
	if err != nil {
		return fmt.Errorf("error marshalling engine configuration: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error unmarshalling engine configuration: %w", err)
	}

	return nil
}

func (ec EngineConfig) DataDir() string {
	return ec.GetString("data_dir", defaultDataDir)
}

func (ec EngineConfig) ListenAddress() string {
	return ec.GetString("listen_address", defaultListenAddress)
}

// GetInt safely extracts an int, with a default fallback.
func (ec EngineConfig) GetInt(key string, def int) (int, error) {
	if v, ok := ec[key]; ok {
		switch val := v.(type) {
		case int:
			return val, nil
		case int64:
			return int(val), nil
		case float64:
			return int(val), nil
		case float32:
			return int(val), nil
		default:
			return def, fmt.Errorf("value %v for key %q cannot be converted to int", val, key)
		}
	}
	return def, nil
}

// GetFloat safely extracts a float64, with a default fallback.
func (ec EngineConfig) GetFloat(key string, def float64) float64 {
	if v, ok := ec[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		case int64:
			return float64(val)
		}
	}
	return def
}

func (ec EngineConfig) GetDuration(key string, defSecs int) time.Duration {
	// Go does not allow generics in methods :-(
	if v, ok := ec[key]; ok {
		if val, ok := v.(time.Duration); ok {
			return val
		}
	}
	return time.Duration(defSecs) * time.Second
}

func (ec EngineConfig) GetString(key string, def string) string {
	if v, ok := ec[key]; ok {
		if val, ok := v.(string); ok {
			return val
		}
	}
	return def
}

// GetStringSlice safely extracts a string slice, with a default fallback.
func (ec EngineConfig) GetStringSlice(key string, def []string) []string {
	if v, ok := ec[key]; ok {
		if val, ok := v.([]string); ok {
			return val
		}
	}
	return def
}

// GetBool safely extracts a bool, with a default fallback.
func (ec EngineConfig) GetBool(key string, def bool) bool {
	if v, ok := ec[key]; ok {
		if val, ok := v.(bool); ok {
			return val
		}
	}
	return def
}

// SearchConfig is the aggregator slice of the configuration.
type SearchConfig struct {
	Parallelism      int
	BroadenThreshold int
	MaxResults       int
}

func (ec EngineConfig) GetSearchConfig() SearchConfig {
	parallelism, _ := ec.GetInt("search_parallelism", defaultSearchParallelism)
	broaden, _ := ec.GetInt("broaden_threshold", defaultBroadenThreshold)
	maxResults, _ := ec.GetInt("max_images", defaultMaxImages)
	return SearchConfig{
		Parallelism:      clamp(parallelism, 3, 5),
		BroadenThreshold: broaden,
		MaxResults:       maxResults,
	}
}

// ResolverConfig is the engagement resolver slice of the configuration.
type ResolverConfig struct {
	TierTimeout  time.Duration
	ParseRetries int
}

func (ec EngineConfig) GetResolverConfig() ResolverConfig {
	secs, _ := ec.GetInt("tier_timeout_seconds", defaultTierTimeoutSeconds)
	retries, _ := ec.GetInt("parse_retries", 2)
	return ResolverConfig{
		TierTimeout:  time.Duration(clamp(secs, 10, 20)) * time.Second,
		ParseRetries: retries,
	}
}

// MediaConfig is the media acquirer slice of the configuration.
type MediaConfig struct {
	ImagesDir          string
	ScreenshotsDir     string
	AllowedHosts       []string
	MinBytes           int64
	MaxBytes           int64
	MinScreenshotBytes int64
	Timeout            time.Duration
}

func (ec EngineConfig) GetMediaConfig() MediaConfig {
	timeoutSecs, _ := ec.GetInt("timeout_seconds", defaultTimeoutSeconds)
	return MediaConfig{
		ImagesDir:          ec.GetString("images_dir", defaultImagesDir),
		ScreenshotsDir:     ec.GetString("screenshots_dir", defaultScreenshotsDir),
		AllowedHosts:       ec.GetStringSlice("media_allowed_hosts", nil),
		MinBytes:           1 << 10,
		MaxBytes:           15 << 20,
		MinScreenshotBytes: 5 << 10,
		Timeout:            time.Duration(timeoutSecs) * time.Second,
	}
}

// ScoringConfig is the scoring slice of the configuration.
type ScoringConfig struct {
	CommentWeight  float64
	ShareWeight    float64
	BonusThreshold float64
	BonusFactor    float64
}

func (ec EngineConfig) GetScoringConfig() ScoringConfig {
	return ScoringConfig{
		CommentWeight:  ec.GetFloat("score_comment_weight", 5),
		ShareWeight:    ec.GetFloat("score_share_weight", 10),
		BonusThreshold: ec.GetFloat("score_bonus_threshold", 100),
		BonusFactor:    1.2,
	}
}

// BrowserConfig is the headless browser slice of the configuration.
type BrowserConfig struct {
	Headless bool
	Width    int64
	Height   int64
}

func (ec EngineConfig) GetBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: ec.GetBool("headless", true),
		Width:    1920,
		Height:   1080,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logrus.Errorf("Error parsing %s: %s. Setting to default.", key, err)
		return def
	}
	return v
}

// envNumeric keeps the raw string when it does not parse, so Validate can
// refuse the configuration instead of silently running with a default.
func envNumeric(key string, def int) any {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return v
}

func envNumericFloat(key string, def float64) any {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return v
}

func envFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		logrus.Errorf("Error parsing %s: %s. Setting to default.", key, err)
		return def
	}
	return v
}

func envStringSlice(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
