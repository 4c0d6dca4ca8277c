// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package confighelpers

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/knadh/koanf"
	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
)

// BeginCommonParse parses args into f and layers the resulting defaults and
// overrides with the optional conf.file, conf.string and environment sources.
// Flags given on the command line always win.
func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	if f.NArg() != 0 {
		return nil, fmt.Errorf("unexpected positional arguments: %v", f.Args())
	}

	k := koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading flags: %w", err)
	}

	for _, path := range k.Strings("conf.file") {
		if err := k.Load(file.Provider(path), koanfjson.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}
	if raw := k.String("conf.string"); raw != "" {
		if err := k.Load(rawbytes.Provider([]byte(raw)), koanfjson.Parser()); err != nil {
			return nil, fmt.Errorf("error loading conf.string: %w", err)
		}
	}
	if prefix := k.String("conf.env-prefix"); prefix != "" {
		if err := loadEnvironmentVariables(k, prefix); err != nil {
			return nil, err
		}
	}

	// Reapply explicitly set flags over whatever the other sources provided.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error reloading flags: %w", err)
	}
	return k, nil
}

// loadEnvironmentVariables maps PREFIX_CHAIN__READER_MAX__RETRIES to
// chain-reader.max-retries.
func loadEnvironmentVariables(k *koanf.Koanf, prefix string) error {
	prefix = strings.TrimSuffix(prefix, "_") + "_"
	return k.Load(env.Provider(prefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, prefix))
		s = strings.ReplaceAll(s, "__", "-")
		return strings.ReplaceAll(s, "_", ".")
	}), nil)
}

// EndCommonParse decodes k into config, rejecting keys config has no field for.
func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	decoderConfig := mapstructure.DecoderConfig{
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Metadata:         nil,
		Result:           config,
		TagName:          "koanf",
		WeaklyTypedInput: true,
	}
	err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{DecoderConfig: &decoderConfig})
	if err != nil {
		return err
	}
	return nil
}

// DumpConfig overwrites the given keys, typically secrets, before k is printed.
func DumpConfig(k *koanf.Koanf, extraOverrideFields map[string]interface{}) error {
	overrideFields := map[string]interface{}{"conf.dump": false}
	for key, value := range extraOverrideFields {
		overrideFields[key] = value
	}
	if err := k.Load(confmap.Provider(overrideFields, "."), nil); err != nil {
		return fmt.Errorf("error removing extra parameters before dump: %w", err)
	}
	return nil
}

func PrintErrorAndExit(err error, usage func(string)) {
	fmt.Printf("\n%s\n", err.Error())
	if usage != nil && !errors.Is(err, flag.ErrHelp) {
		usage(os.Args[0])
	}
	os.Exit(1)
}

// GetVersion reports the vcs revision and time the binary was built from.
func GetVersion() (string, string) {
	revision, vcsTime := "development", "development"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return revision, vcsTime
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
			if len(revision) > 7 {
				revision = revision[:7]
			}
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				vcsTime = parsed.UTC().Format(time.RFC3339)
			}
		}
	}
	return revision, vcsTime
}
