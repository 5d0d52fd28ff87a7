package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

type loginBody struct {
	RepCode  string `json:"rep_code" validate:"required"`
	Password string `json:"password" validate:"required,min=4"`
}

func post(body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(http.MethodPost, "/", nil)
	}
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	var dest loginBody
	if err := DecodeJSONBody(post(`{"rep_code":"R7","password":"secret"}`), &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.RepCode != "R7" {
		t.Fatalf("unexpected rep code %q", dest.RepCode)
	}
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	var dest loginBody
	err := DecodeJSONBody(post(`{"password":"abc"}`), &dest)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %#v", pkgerrors.As(err).Details())
	}
	if details["rep_code"] != "is required" {
		t.Fatalf("unexpected rep_code detail %q", details["rep_code"])
	}
	if details["password"] != "must be at least 4" {
		t.Fatalf("unexpected password detail %q", details["password"])
	}
}

func TestDecodeJSONBodyRejectsBadBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"empty", ``, "request body is required"},
		{"unknown field", `{"rep_code":"R7","password":"secret","pin":1}`, "invalid request body"},
		{"two documents", `{"rep_code":"R7","password":"secret"}{}`, "request body must hold a single JSON document"},
		{"too large", `{"rep_code":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, "request body too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var dest loginBody
			err := DecodeJSONBody(post(tc.body), &dest)
			if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := pkgerrors.As(err).Message(); got != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, got)
			}
		})
	}
}
