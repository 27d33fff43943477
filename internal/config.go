package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8080"`

	NatsURL     string `env:"NATS_URL,default=nats://localhost:4222"`
	MaxMessages int    `env:"MAX_MESSAGES,default=1000"`

	// RetryInterval is the fixed delay between backend reconnection
	// attempts. No backoff growth, no retry cap.
	RetryInterval  time.Duration `env:"RETRY_INTERVAL,default=5s"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT,default=2s"`

	MetricInterval time.Duration `env:"METRIC_INTERVAL,default=5s"`

	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	LogLevel string `env:"LOG_LEVEL,default=INFO"`
}

// CensoredWordList splits the comma-separated CENSORED_WORDS option,
// dropping empty entries.
func (c Config) CensoredWordList() []string {
	var words []string
	for _, w := range strings.Split(c.CensoredWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
