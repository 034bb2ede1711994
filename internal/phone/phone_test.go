package phone

import "testing"

func TestNormalize(t *testing.T) {
	v := Validator{DefaultRegion: "RU"}

	cases := []struct {
		raw    string
		region string
		want   string
	}{
		{"+79261234567", "", "+79261234567"},
		{"89261234567", "", "+79261234567"},
		{"8 (926) 123-45-67", "RU", "+79261234567"},
		{"+380501234567", "", "+380501234567"},
		{"0501234567", "UA", "+380501234567"},
	}
	for _, c := range cases {
		got, err := v.Normalize(c.raw, c.region)
		if err != nil {
			t.Fatalf("Normalize(%q, %q): %v", c.raw, c.region, err)
		}
		if got != c.want {
			t.Fatalf("Normalize(%q, %q) = %q, want %q", c.raw, c.region, got, c.want)
		}
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	v := Validator{DefaultRegion: "RU"}
	for _, raw := range []string{"", "hello", "12", "+7999"} {
		if got, err := v.Normalize(raw, ""); err == nil {
			t.Fatalf("Normalize(%q) = %q, want error", raw, got)
		}
	}
}

func TestRegionFromLanguage(t *testing.T) {
	cases := map[string]string{
		"ru": "RU", "uk": "UA", "be": "BY", "kk": "KZ", "uz": "UZ",
		"en": "US", "de": "RU", "": "RU",
	}
	for lang, want := range cases {
		if got := RegionFromLanguage(lang); got != want {
			t.Fatalf("RegionFromLanguage(%q) = %q, want %q", lang, got, want)
		}
	}
}
