package config

// ConfigBackend abstracts where launcher settings are persisted. The default
// is a flat JSON file in the user config directory.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
