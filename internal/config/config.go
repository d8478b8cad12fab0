package config

type Config interface {
	EnvConfig
	IdentityConfig
	SessionConfig
	EntitlementConfig
	StoreConfig
	MessagingConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetMetricsAddr() string
	GetExtensionID() string
	GetContextID() string
}

type mainConfig struct {
	EnvVars
	Identity
	Session
	Entitlement
	Store
	Messaging
}

// New returns a Config backed by environment variables only.
func New() Config {
	return newConfig(source{})
}

// Load returns a Config backed by environment variables with the YAML file at
// path supplying values for any variable that is unset.
func Load(path string) (Config, error) {
	values, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return newConfig(source{file: values}), nil
}

func newConfig(src source) Config {
	return mainConfig{
		EnvVars:     EnvVars{src: src},
		Identity:    Identity{src: src},
		Session:     Session{src: src},
		Entitlement: Entitlement{src: src},
		Store:       Store{src: src},
		Messaging:   Messaging{src: src},
	}
}
