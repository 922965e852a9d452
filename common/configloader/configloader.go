// common/configloader/configloader.go
package configloader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load загружает конфиг в cfgPtr: defaults + .env + ENV + YAML.
// envPrefix — префикс ENV переменных, например: "TRADEFLOW".
// defaults — ключи viper (через точку) и их значения по умолчанию.
func Load(path, envPrefix string, defaults map[string]interface{}, cfgPtr interface{}) error {
	v := viper.New()

	// Шаг 1: defaults
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	// Шаг 2: .env (если есть) + environment override
	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("configloader: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Шаг 3: read file (if provided)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	// Шаг 4: decode. AllSettings не видит ENV для ключей без default,
	// поэтому все ключи должны быть зарегистрированы в defaults.
	if err := decode(v.AllSettings(), cfgPtr); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	// Шаг 5: validate if possible
	if v, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}

	return nil
}

// loadDotEnv подгружает переменные из файла, не перетирая уже заданные.
// Отсутствие файла ошибкой не считается.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
