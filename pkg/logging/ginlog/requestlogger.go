package ginlog

import (
	"fmt"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sgl-project/registry/pkg/logging"
)

// Config configures RequestLogger.
type Config struct {
	// ExcludeQueryParameters drops the raw query from request logs.
	ExcludeQueryParameters bool `mapstructure:"exclude_query_parameters"`

	// LevelByPath overrides the level of requests to an exact path,
	// e.g. "/healthz" -> "debug". Other requests log at INFO.
	LevelByPath map[string]string `mapstructure:"level_by_path"`

	// LevelByRegexPath overrides the level of requests whose path matches.
	LevelByRegexPath map[string]string `mapstructure:"level_by_regex_path"`
}

// Validate checks that every level parses and every pattern compiles.
func (c Config) Validate() error {
	for path, lvl := range c.LevelByPath {
		if _, err := logging.ParseLevel(lvl); err != nil {
			return fmt.Errorf("level for path %q: %w", path, err)
		}
	}
	for pattern, lvl := range c.LevelByRegexPath {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("error compiling pattern %q: %w", pattern, err)
		}
		if _, err := logging.ParseLevel(lvl); err != nil {
			return fmt.Errorf("level for pattern %q: %w", pattern, err)
		}
	}
	return nil
}

type regexLevel struct {
	re    *regexp.Regexp
	level logging.Level
}

type requestLogger struct {
	logger       logging.Interface
	config       Config
	levelByPath  map[string]logging.Level
	levelByRegex []regexLevel
	now          func() time.Time
}

// RequestLogger returns a gin middleware logging one line per request and
// exposing a request scoped logger through Logger. The config must be valid.
func RequestLogger(logger logging.Interface, config Config) gin.HandlerFunc {
	rl := &requestLogger{
		logger:      logger,
		config:      config,
		levelByPath: make(map[string]logging.Level, len(config.LevelByPath)),
		now:         time.Now,
	}
	for path, lvl := range config.LevelByPath {
		level, _ := logging.ParseLevel(lvl)
		rl.levelByPath[path] = level
	}
	for pattern, lvl := range config.LevelByRegexPath {
		level, _ := logging.ParseLevel(lvl)
		rl.levelByRegex = append(rl.levelByRegex, regexLevel{re: regexp.MustCompile(pattern), level: level})
	}
	return rl.handle
}

func (rl *requestLogger) handle(c *gin.Context) {
	start := rl.now()
	// captured before handlers get a chance to rewrite them
	path := c.Request.URL.Path
	query := c.Request.URL.RawQuery

	requestID := RequestID(c)
	c.Header(RequestIDHeader, requestID)
	log := rl.logger.WithField("request_id", requestID)
	c.Set(requestLoggerKey, log)

	c.Next()

	fields := logging.Fields{
		"method":     c.Request.Method,
		"path":       path,
		"ip":         c.ClientIP(),
		"user_agent": c.Request.UserAgent(),
		"status":     c.Writer.Status(),
		"latency":    rl.now().Sub(start).String(),
	}
	if !rl.config.ExcludeQueryParameters && query != "" {
		fields["query"] = query
	}
	log = log.WithFields(fields)

	if len(c.Errors) > 0 {
		log.WithError(c.Errors.Last()).Error(path)
		return
	}

	switch rl.levelFor(path) {
	case logging.LevelDebug:
		log.Debug(path)
	case logging.LevelWarn:
		log.Warn(path)
	case logging.LevelError:
		log.Error(path)
	default:
		log.Info(path)
	}
}

// levelFor matches exact paths first, then patterns.
func (rl *requestLogger) levelFor(path string) logging.Level {
	if lvl, ok := rl.levelByPath[path]; ok {
		return lvl
	}
	for _, rx := range rl.levelByRegex {
		if rx.re.MatchString(path) {
			return rx.level
		}
	}
	return logging.LevelInfo
}
