package logging

import (
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options ログ出力の設定
type Options struct {
	Level  string `long:"log-level"  env:"LOG_LEVEL"  description:"ログレベル" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	Pretty bool   `long:"log-pretty" env:"LOG_PRETTY" description:"人間向けのコンソール出力にする"`
}

// Setup グローバルロガーを初期化する
func (o Options) Setup() {
	level, err := zerolog.ParseLevel(o.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if o.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

// RequestLogger リクエストごとにメソッド・パス・ステータス・所要時間を記録する
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("ip", c.ClientIP()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	}
}
