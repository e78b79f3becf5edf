package http

// Config is the HTTP surface configuration consumed from the outside.
type Config struct {
	Port     uint           `mapstructure:"port"`
	Bind     string         `mapstructure:"bind"`
	Callback CallbackConfig `mapstructure:"callback"`
}

// CallbackConfig configures the loopback OAuth callback listener. If the
// primary port is occupied the listener falls back through the
// [FallbackStart, FallbackEnd] range in order.
type CallbackConfig struct {
	Bind          string `mapstructure:"bind"`
	Port          int    `mapstructure:"port"`
	FallbackStart int    `mapstructure:"fallback_start"`
	FallbackEnd   int    `mapstructure:"fallback_end"`
}
