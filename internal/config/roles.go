package config

import (
	"fmt"

	"github.com/jackzampolin/bookbaker/internal/crawler"
	"github.com/jackzampolin/bookbaker/internal/export"
	"github.com/jackzampolin/bookbaker/internal/pipeline"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
	"github.com/jackzampolin/bookbaker/internal/translate"
)

// BuildRoles instantiates the configured roles into live registries. API
// keys are resolved from the environment here, never earlier, so secrets
// stay out of the persisted config. Crawlers are compiled in rather than
// configured; the crawler registry is returned for callers to populate.
func BuildRoles(cfg *Config, svc *svcctx.Services) (*pipeline.Roles, error) {
	logger := svc.Log()

	roles := &pipeline.Roles{
		Crawlers:    crawler.NewRegistry(),
		Translators: translate.NewRegistry(),
		Exporters:   export.NewRegistry(),
	}
	roles.Crawlers.SetLogger(logger)
	roles.Translators.SetLogger(logger)
	roles.Exporters.SetLogger(logger)

	for _, rc := range cfg.Roles {
		if rc.Name == "" {
			return nil, fmt.Errorf("role of type %q has no name", rc.Type)
		}
		switch rc.Type {
		case "openai":
			backend := translate.NewOpenAIBackend(svc, translate.OpenAIConfig{
				APIKey:      ResolveEnvVars(rc.APIKey),
				BaseURL:     rc.BaseURL,
				Model:       rc.Model,
				Temperature: rc.Temperature,
			})
			roles.Translators.Register(translate.NewEngine(rc.Name, backend, engineConfig(rc)))

		case "mock":
			backend := &translate.MockBackend{}
			roles.Translators.Register(translate.NewEngine(rc.Name, backend, engineConfig(rc)))

		case "deepl":
			roles.Translators.Register(translate.NewDeepL(rc.Name, translate.DeepLConfig{
				APIKey:         ResolveEnvVars(rc.APIKey),
				BaseURL:        rc.BaseURL,
				MaxRetries:     rc.MaxRetries,
				RetryDelay:     rc.RetryDelay,
				RateLimit:      rc.RateLimit,
				SkipTranslated: rc.SkipTranslated,
				HTTPClient:     svc.HTTPClient(),
			}))

		case "epub":
			roles.Exporters.Register(export.NewEpub(rc.Name, rc.OutputDir))

		default:
			return nil, fmt.Errorf("unknown role type %q for role %q", rc.Type, rc.Name)
		}
	}

	return roles, nil
}

func engineConfig(rc RoleCfg) translate.EngineConfig {
	return translate.EngineConfig{
		MaxRetries:      rc.MaxRetries,
		RetryDelay:      rc.RetryDelay,
		BatchSize:       rc.BatchSize,
		MaxSessionChars: rc.MaxSessionChars,
		RemindInterval:  rc.RemindInterval,
		SkipTranslated:  rc.SkipTranslated,
		OverwriteMeta:   rc.OverwriteMeta,
		RateLimit:       rc.RateLimit,
	}
}
