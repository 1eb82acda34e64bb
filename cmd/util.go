package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"mining-coordinator/config"
	"os"
	"path/filepath"
	"strings"
)

func getAppDir() (string, string) {
	app := filepath.Base(strings.TrimLeft(os.Args[0], "./"))
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		log.Panic(err)
	}
	return app, dir
}

func getConfigPath(command *cobra.Command) string {
	configPath, _ := command.Flags().GetString("config")

	if configPath == "" {
		configPath = "config.json"
	}

	return configPath
}

// loadConfig 在默认配置之上解码配置文件；未指定且默认文件不存在时使用默认值
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	explicit, _ := cmd.Flags().GetString("config")
	configsPath := getConfigPath(cmd)

	file, err := os.Open(configsPath)
	if err != nil {
		if explicit == "" && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("Unable to open configs file at %q: %w", configsPath, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("Unable to decode configs configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
