package audit

import "testing"

func TestParseRoute_AuthLogin(t *testing.T) {
	ar := ParseRoute("POST", "/api/v1/auth/login")
	if ar.Action != "login" || ar.Resource != "auth" {
		t.Errorf("got %q/%q, want login/auth", ar.Action, ar.Resource)
	}
}

func TestParseRoute_MappingSubRoutes(t *testing.T) {
	cases := []struct {
		method, path string
		action       string
	}{
		{"POST", "/api/v1/mappings/u42/did", "add_did"},
		{"POST", "/api/v1/mappings/u42/wallet", "connect_wallet"},
		{"PUT", "/api/v1/mappings/u42/phase", "update_phase"},
		{"POST", "/api/v1/mappings/u42/credentials", "convert_credentials"},
		{"GET", "/api/v1/mappings/u42", "get"},
		{"DELETE", "/api/v1/mappings/u42", "delete"},
		{"POST", "/api/v1/mappings", "create"},
	}
	for _, tc := range cases {
		ar := ParseRoute(tc.method, tc.path)
		if ar.Action != tc.action {
			t.Errorf("ParseRoute(%s %s) action = %q, want %q", tc.method, tc.path, ar.Action, tc.action)
		}
		if ar.Resource != "mapping" {
			t.Errorf("ParseRoute(%s %s) resource = %q, want mapping", tc.method, tc.path, ar.Resource)
		}
	}
}

func TestParseRoute_Translate(t *testing.T) {
	ar := ParseRoute("POST", "/api/v1/translate")
	if ar.Action != "translate" || ar.Resource != "identity" {
		t.Errorf("got %q/%q", ar.Action, ar.Resource)
	}
}

func TestParseRoute_Credentials(t *testing.T) {
	ar := ParseRoute("POST", "/api/v1/credentials")
	if ar.Action != "create" || ar.Resource != "credential" {
		t.Errorf("got %q/%q", ar.Action, ar.Resource)
	}
}

func TestParseRoute_UnknownRoute(t *testing.T) {
	ar := ParseRoute("GET", "/api/v1/widgets")
	if ar.Action != "get" || ar.Resource != "widget" {
		t.Errorf("got %q/%q", ar.Action, ar.Resource)
	}
}

func TestParseRoute_EmptyPath(t *testing.T) {
	ar := ParseRoute("GET", "/")
	if ar.Resource != "unknown" {
		t.Errorf("resource = %q, want unknown", ar.Resource)
	}
}
