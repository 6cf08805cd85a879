package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "messaging-app"

// Init 配置全局 logger，输出到 stdout。
func Init(env, level string) {
	InitWithWriter(os.Stdout, env, level)
}

// InitWithWriter 在 dev 环境使用控制台格式，其余环境输出 JSON。
// level 为空时 dev 默认 debug、其他环境默认 info；无法解析时回退到默认值并记录警告。
func InitWithWriter(w io.Writer, env, level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()

	lvl, err := parseLevel(env, level)
	zerolog.SetGlobalLevel(lvl)
	if err != nil {
		log.Warn().Err(err).Str("level", level).Msg("invalid LOG_LEVEL, using default")
	}
}

func parseLevel(env, level string) (zerolog.Level, error) {
	def := zerolog.InfoLevel
	if env == "dev" {
		def = zerolog.DebugLevel
	}
	if strings.TrimSpace(level) == "" {
		return def, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return def, err
	}
	return lvl, nil
}
