package config

type SecurityConfig interface {
	GetSkipStateVerification() bool
}

type Security struct {
	// SkipStateVerification disables the CSRF state comparison on callbacks.
	// Development only: it is refused when ENV=PROD and logged on every callback.
	SkipStateVerification bool `env:"OAUTH_SKIP_STATE_VERIFICATION" envDefault:"false"`
}

var _ SecurityConfig = Security{}

func (s Security) GetSkipStateVerification() bool {
	return s.SkipStateVerification
}
