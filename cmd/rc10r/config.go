package main

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gethiox/rc10r/internal/pkg/config"
	"github.com/gethiox/rc10r/internal/pkg/logger"
	"go.uber.org/zap"
)

//go:embed rc10r-config/rc10r.config
//go:embed rc10r-config/factory/*
var templateConfig embed.FS

const (
	configDir   = "rc10r-config"
	factoryKits = configDir + "/factory/kits.toml"
	userKits    = configDir + "/kits.toml"
)

// createConfigDirectoryIfNeeded creates the config directory from templates under root.
// Factory files are replaced when the embedded version changed, rc10r.config stays intact.
func createConfigDirectoryIfNeeded(root string) error {
	return fs.WalkDir(templateConfig, configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(path))

		if d.IsDir() {
			err := os.MkdirAll(target, 0o777)
			if err != nil {
				return fmt.Errorf("cannot create \"%s\" directory: %w", target, err)
			}
			return nil
		}

		data, err := fs.ReadFile(templateConfig, path)
		if err != nil {
			return fmt.Errorf("cannot read \"%s\" template file: %w", path, err)
		}

		current, err := os.ReadFile(target)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info(fmt.Sprintf("Created \"%s\" file", target), logger.Debug)
		case err != nil:
			return fmt.Errorf("cannot read \"%s\" file: %w", target, err)
		case filepath.Dir(path) != configDir+"/factory":
			// user owned
			return nil
		case bytes.Equal(current, data):
			log.Info(fmt.Sprintf("File \"%s\" not changed", target), logger.Debug)
			return nil
		default:
			log.Info(fmt.Sprintf("File \"%s\" changed, replacing data...", target), logger.Debug)
		}

		err = os.WriteFile(target, data, 0o666)
		if err != nil {
			return fmt.Errorf("cannot write data into \"%s\" file: %w", target, err)
		}
		return nil
	})
}

// loadKits prefers the user kit list over the factory one and falls back to built-in kits.
func loadKits(root string) []config.Kit {
	for _, path := range []string{userKits, factoryKits} {
		path = filepath.Join(root, filepath.FromSlash(path))
		kits, err := config.LoadKits(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			log.Info(fmt.Sprintf("kit list ignored: %v", err), zap.String("config", path), logger.Warning)
			continue
		}
		log.Info(fmt.Sprintf("%d kits loaded", len(kits)), zap.String("config", path), logger.Debug)
		return kits
	}
	return config.DefaultKits()
}
