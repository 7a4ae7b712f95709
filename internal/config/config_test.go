package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %q", c.Server.Port)
	}
	if c.Run.MinDiscount != 25 || c.Run.FallbackLow != 10 || c.Run.FallbackHigh != 70 {
		t.Errorf("Unexpected run defaults: %+v", c.Run)
	}
	if c.Run.Interval != 6*time.Hour {
		t.Errorf("Expected 6h interval, got %v", c.Run.Interval)
	}
	if len(c.Brands.Targets) != 10 {
		t.Errorf("Expected 10 brand targets, got %d", len(c.Brands.Targets))
	}
	if len(c.PriceOye.Targets) != 3 {
		t.Errorf("Expected 3 PriceOye categories, got %d", len(c.PriceOye.Targets))
	}
	if len(c.Server.CORSOrigins) != 1 || c.Server.CORSOrigins[0] != "*" {
		t.Errorf("Expected wildcard CORS origin, got %v", c.Server.CORSOrigins)
	}
	if c.Export.Layout != "legacy" {
		t.Errorf("Expected legacy export layout, got %q", c.Export.Layout)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
run:
  min_discount: 40
  interval: 30m
brands:
  targets:
    - name: Khaadi
      url: https://pk.khaadi.com/sale/
known_entities:
  - category: Shoes
    names: [Bata, Servis]
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Server.Port != "9090" || c.Run.MinDiscount != 40 || c.Run.Interval != 30*time.Minute {
		t.Errorf("File values not applied: %+v %+v", c.Server, c.Run)
	}
	if c.Run.FallbackHigh != 70 {
		t.Errorf("Unset values should keep defaults, got fallback_high %d", c.Run.FallbackHigh)
	}
	if len(c.Brands.Targets) != 1 {
		t.Errorf("Expected the file's brand list to replace the default, got %d", len(c.Brands.Targets))
	}
	if got := c.KnownEntities(); len(got) != 2 || got[0].IdentityKey != "Bata" || got[0].Category != "Shoes" {
		t.Errorf("Unexpected entities %+v", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"discount over 100": "run:\n  min_discount: 150\n",
		"bad log level":     "log:\n  level: loud\n",
		"bad template":      "search:\n  template: https://example.com/?q=\n",
		"target without url": `
daraz:
  targets:
    - name: Phones
`,
		"broken yaml": "server: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Errorf("Expected an error")
			}
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/sales?sslmode=disable")
	t.Setenv("PORT", "7070")
	t.Setenv("DARAZ_AFFILIATE_ID", "dz-1")
	t.Setenv("PRICEOYE_AFFILIATE_ID", "po-1")

	c, err := LoadWithEnv("")
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Database.URL != "postgres://u:p@db:5432/sales?sslmode=disable" {
		t.Errorf("DATABASE_URL not applied, got %q", c.Database.URL)
	}
	if c.Server.Port != "7070" {
		t.Errorf("PORT not applied, got %q", c.Server.Port)
	}
	if c.Affiliate.DarazID != "dz-1" || c.Affiliate.PriceOyeID != "po-1" {
		t.Errorf("Affiliate ids not applied: %+v", c.Affiliate)
	}
}

func TestKnownEntities_FallbackURLs(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entities := c.KnownEntities()
	if len(entities) != 40 {
		t.Fatalf("Expected 40 known entities, got %d", len(entities))
	}

	byKey := map[string]string{}
	for _, e := range entities {
		byKey[e.IdentityKey] = e.FallbackURL
	}
	if byKey["Khaadi"] != "https://pk.khaadi.com/sale/" {
		t.Errorf("Expected Khaadi to carry its sale page, got %q", byKey["Khaadi"])
	}
	if byKey["Bata"] != "" {
		t.Errorf("Expected no fallback URL for Bata, got %q", byKey["Bata"])
	}

	rc := c.ListingRunConfig()
	if rc.MinDiscountThreshold != 25 || rc.FallbackDiscountRange.Low != 10 || rc.FallbackDiscountRange.High != 70 {
		t.Errorf("Unexpected run config %+v", rc)
	}
}
