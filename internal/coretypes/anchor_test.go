package coretypes

import "testing"

func TestAnchorConstructors(t *testing.T) {
	css := Css("#login-button")
	if css.Kind != AnchorCss || css.Selector != "#login-button" {
		t.Errorf("Css() = %+v", css)
	}

	aria := Aria("button", "Submit")
	if aria.Kind != AnchorAria || aria.Role != "button" || aria.Name != "Submit" {
		t.Errorf("Aria() = %+v", aria)
	}

	text := Text("Add to cart", true)
	if text.Kind != AnchorText || text.Text != "Add to cart" || !text.Exact {
		t.Errorf("Text() = %+v", text)
	}

	combo := Combo(css, aria)
	if combo.Kind != AnchorCombo || len(combo.Sub) != 2 {
		t.Errorf("Combo() = %+v", combo)
	}
}

func TestAnchorKind_String(t *testing.T) {
	tests := []struct {
		kind AnchorKind
		want string
	}{
		{AnchorCss, "css"},
		{AnchorAria, "aria"},
		{AnchorText, "text"},
		{AnchorAttr, "attr"},
		{AnchorBackend, "backend"},
		{AnchorGeometry, "geometry"},
		{AnchorCombo, "combo"},
		{AnchorKind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestWaitTier_String(t *testing.T) {
	tests := []struct {
		tier WaitTier
		want string
	}{
		{WaitNone, "none"},
		{WaitDomReady, "dom_ready"},
		{WaitNetworkIdle, "network_idle"},
		{WaitFull, "full"},
		{WaitTier(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.tier.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.tier, got, tt.want)
		}
	}
}
