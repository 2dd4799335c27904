package providers

import (
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/config"
)

func TestRegistryResolvesDefault(t *testing.T) {
	reg, err := NewRegistry(config.ProvidersConfig{
		Default: config.BackendCodex,
		Backends: map[string]config.BackendConfig{
			config.BackendCodex:    cliConfig("codex"),
			config.BackendOpenCode: cliConfig("opencode"),
		},
	}, testOptions(&fakeRunner{}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	p, err := reg.Get("")
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if p.Name() != config.BackendCodex {
		t.Errorf("default backend = %q, want codex", p.Name())
	}
	if reg.Default() != config.BackendCodex {
		t.Errorf("Default() = %q", reg.Default())
	}
}

func TestRegistryUnknownBackendZeroSpawns(t *testing.T) {
	fake := &fakeRunner{}
	reg, err := NewRegistry(config.ProvidersConfig{
		Default: config.BackendCodex,
		Backends: map[string]config.BackendConfig{
			config.BackendCodex:    cliConfig("codex"),
			config.BackendOpenCode: cliConfig("opencode"),
		},
	}, testOptions(fake))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	_, err = reg.Get("copilot")
	if !errors.Is(err, ErrClient) {
		t.Fatalf("Get(copilot) error = %v, want client error", err)
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error is not structured: %v", err)
	}
	if perr.Kind != KindClient {
		t.Errorf("Kind = %q, want client", perr.Kind)
	}
	if len(fake.calls) != 0 {
		t.Errorf("unknown backend caused %d subprocess runs, want 0", len(fake.calls))
	}
}

func TestRegistrySkipsKeylessHosted(t *testing.T) {
	reg, err := NewRegistry(config.ProvidersConfig{
		Default: config.BackendCodex,
		Backends: map[string]config.BackendConfig{
			config.BackendCodex:     cliConfig("codex"),
			config.BackendOpenAI:    {Model: "gpt-4o", Timeout: time.Minute},
			config.BackendAnthropic: {Model: "claude-sonnet-4-5", Timeout: time.Minute},
		},
	}, testOptions(&fakeRunner{}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	names := reg.Names()
	if len(names) != 1 || names[0] != config.BackendCodex {
		t.Errorf("Names() = %v, want [codex]", names)
	}
	if _, err := reg.Get(config.BackendOpenAI); !errors.Is(err, ErrClient) {
		t.Errorf("Get(openai) error = %v, want client error", err)
	}
}

func TestRegistryKeepsKeyedHosted(t *testing.T) {
	reg, err := NewRegistry(config.ProvidersConfig{
		Default: config.BackendAnthropic,
		Backends: map[string]config.BackendConfig{
			config.BackendAnthropic: {APIKey: "sk-ant-test", Model: "claude-sonnet-4-5", Timeout: time.Minute},
			config.BackendOpenAI:    {APIKey: "sk-test", Model: "gpt-4o", Timeout: time.Minute},
		},
	}, testOptions(&fakeRunner{}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	p, err := reg.Get(config.BackendAnthropic)
	if err != nil {
		t.Fatalf("get anthropic: %v", err)
	}
	if p.Model() != "claude-sonnet-4-5" {
		t.Errorf("Model() = %q", p.Model())
	}
	if _, err := reg.Get(config.BackendOpenAI); err != nil {
		t.Errorf("get openai: %v", err)
	}
}

func TestRegistryDefaultMustSurviveSkips(t *testing.T) {
	_, err := NewRegistry(config.ProvidersConfig{
		Default: config.BackendOpenAI,
		Backends: map[string]config.BackendConfig{
			config.BackendCodex:  cliConfig("codex"),
			config.BackendOpenAI: {Model: "gpt-4o", Timeout: time.Minute},
		},
	}, testOptions(&fakeRunner{}))
	if err == nil {
		t.Fatal("expected error when the default backend is skipped")
	}
}

func TestRegistryGeminiModeSelection(t *testing.T) {
	t.Run("keyless uses CLI", func(t *testing.T) {
		reg, err := NewRegistry(config.ProvidersConfig{
			Default: config.BackendGemini,
			Backends: map[string]config.BackendConfig{
				config.BackendGemini: cliConfig("gemini"),
			},
		}, testOptions(&fakeRunner{}))
		if err != nil {
			t.Fatalf("new registry: %v", err)
		}
		p, err := reg.Get(config.BackendGemini)
		if err != nil {
			t.Fatalf("get gemini: %v", err)
		}
		if _, ok := p.(*geminiCLIBackend); !ok {
			t.Errorf("backend type = %T, want CLI variant", p)
		}
	})

	t.Run("keyed uses hosted API", func(t *testing.T) {
		reg, err := NewRegistry(config.ProvidersConfig{
			Default: config.BackendGemini,
			Backends: map[string]config.BackendConfig{
				config.BackendGemini: {APIKey: "test-key", Model: "gemini-2.5-flash", Timeout: time.Minute},
			},
		}, testOptions(&fakeRunner{}))
		if err != nil {
			t.Fatalf("new registry: %v", err)
		}
		p, err := reg.Get(config.BackendGemini)
		if err != nil {
			t.Fatalf("get gemini: %v", err)
		}
		if _, ok := p.(*geminiAPIBackend); !ok {
			t.Errorf("backend type = %T, want hosted variant", p)
		}
	})
}

func TestRegistryNamesSorted(t *testing.T) {
	reg, err := NewRegistry(config.ProvidersConfig{
		Default: config.BackendCursor,
		Backends: map[string]config.BackendConfig{
			config.BackendOpenCode: cliConfig("opencode"),
			config.BackendCursor:   cliConfig("cursor"),
			config.BackendCodex:    cliConfig("codex"),
		},
	}, testOptions(&fakeRunner{}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	names := reg.Names()
	want := []string{"codex", "cursor", "opencode"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistryModelList(t *testing.T) {
	reg, err := NewRegistry(config.ProvidersConfig{
		Default: config.BackendCodex,
		Backends: map[string]config.BackendConfig{
			config.BackendCodex:  cliConfig("codex"),
			config.BackendCursor: cliConfig("cursor"),
		},
	}, testOptions(&fakeRunner{}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	list := reg.ModelList()
	if list.Object != "list" {
		t.Errorf("Object = %q", list.Object)
	}
	if len(list.Data) != 2 {
		t.Fatalf("Data = %+v", list.Data)
	}
	for _, m := range list.Data {
		if m.Object != "model" {
			t.Errorf("model object = %q", m.Object)
		}
	}
}

func TestRegistryDefaultsFromConfigValidate(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}

	reg, err := NewRegistry(cfg.Providers, testOptions(&fakeRunner{}))
	if err != nil {
		t.Fatalf("new registry from defaults: %v", err)
	}
	if _, err := reg.Get(""); err != nil {
		t.Errorf("default backend unavailable: %v", err)
	}
}
