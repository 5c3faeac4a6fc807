package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "ADMISSION_TARGET", "QUALITY_GATE", "SIMILARITY_CEILING", "REFRESH_CORPUS_PER_CANDIDATE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.AdmissionTarget != 6 {
		t.Fatalf("expected default target 6, got %d", cfg.AdmissionTarget)
	}
	if cfg.QualityGate != 85 {
		t.Fatalf("expected default gate 85, got %f", cfg.QualityGate)
	}
	if cfg.SimilarityCeiling != 0.82 {
		t.Fatalf("expected default ceiling 0.82, got %f", cfg.SimilarityCeiling)
	}
	if !cfg.RefreshCorpus {
		t.Fatalf("expected per-candidate corpus refresh by default")
	}
}

func TestValidateRejectsBadCeiling(t *testing.T) {
	t.Setenv("SIMILARITY_CEILING", "1.5")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for ceiling above 1")
	}
}

func TestShortFormCategoryList(t *testing.T) {
	t.Parallel()

	cfg := &Config{ShortFormCategories: " News, brief,news,, ALERT "}
	got := cfg.ShortFormCategoryList()
	want := []string{"news", "brief", "alert"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSiteHostList(t *testing.T) {
	t.Parallel()

	cfg := &Config{SiteHosts: "Example.com, www.example.com ,"}
	got := cfg.SiteHostList()
	if len(got) != 2 || got[0] != "example.com" || got[1] != "www.example.com" {
		t.Fatalf("unexpected hosts %v", got)
	}
}

// unsetEnv clears keys for the test; t.Setenv restores them afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}
