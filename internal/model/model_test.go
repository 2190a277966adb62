package model

import "testing"

func TestParseTarget_Kinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		cmd  bool
		name string
		kind TargetKind
	}{
		{"example.com", false, "example.com", KindHost},
		{"udp://10.0.0.1:7777", false, "10.0.0.1:7777", KindUDP},
		{"stun:stun.l.google.com:19302", false, "stun.l.google.com:19302", KindSTUN},
		{" curl -s example.com ", true, "curl -s example.com", KindCommand},
	}
	for _, c := range cases {
		name, kind := ParseTarget(c.raw, c.cmd)
		if name != c.name || kind != c.kind {
			t.Fatalf("ParseTarget(%q)=%q,%s", c.raw, name, kind)
		}
	}
}

func TestTarget_Label(t *testing.T) {
	t.Parallel()

	host := Target{Name: "example.com", Addr: "93.184.216.34", Kind: KindHost}
	if got := host.Label(); got != "example.com (93.184.216.34)" {
		t.Fatalf("label=%q", got)
	}
	cmd := Target{Name: "sleep 1", Kind: KindCommand}
	if got := cmd.Label(); got != "sleep 1" {
		t.Fatalf("label=%q", got)
	}
	ip := Target{Name: "10.0.0.1", Addr: "10.0.0.1", Kind: KindHost}
	if got := ip.Label(); got != "10.0.0.1" {
		t.Fatalf("label=%q", got)
	}
}
