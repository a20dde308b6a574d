package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/backoffice-console/internal/app"
	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/config"
	"github.com/stacklok/backoffice-console/internal/console"
)

// loadConfig reads --config when given and applies --base-url on top
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(config.WithConfigPath(path))
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		slog.Debug("Loaded configuration", "path", path, "base_url", cfg.Backend.BaseURL)
	}
	if baseURL := viper.GetString("base-url"); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withConsoleApp builds the console application, runs fn and stops the application
func withConsoleApp(ctx context.Context, fn func(*app.ConsoleApp) error, opts ...app.ConsoleAppOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	consoleApp, err := app.NewConsoleApp(ctx, append([]app.ConsoleAppOptions{app.WithConfig(cfg)}, opts...)...)
	if err != nil {
		return fmt.Errorf("failed to create console: %w", err)
	}
	defer func() {
		if err := consoleApp.Stop(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to stop console cleanly", "error", err)
		}
	}()
	return fn(consoleApp)
}

// parseFields turns key=value pairs and an optional JSON object into a payload.
// Values are read as YAML scalars, so 3.5 is a number and true a bool.
func parseFields(pairs []string, data string) (collection.Item, error) {
	payload := collection.Item{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("invalid --data: %w", err)
		}
	}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || raw == "" {
			value = raw
		}
		switch value.(type) {
		case time.Time, map[string]any, []any:
			value = raw
		}
		payload[key] = value
	}
	return payload, nil
}

// writeItems prints items as a table of columns, or as JSON
func writeItems(w io.Writer, format string, columns []string, items []collection.Item) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	table := tablewriter.NewWriter(w)
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	table.Header(header...)
	for _, it := range items {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = console.FormatCell(it[c])
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render row: %w", err)
		}
	}
	return table.Render()
}

// writeRecord prints a single record as indented JSON
func writeRecord(w io.Writer, record collection.Item) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

// bindFlags binds every flag of the set to the viper key prefix+name
func bindFlags(flags *pflag.FlagSet, prefix string) {
	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(prefix+f.Name, f); err != nil {
			slog.Error("Error binding flag", "flag", f.Name, "error", err)
		}
	})
}
