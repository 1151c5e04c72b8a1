package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("PageSize = %d, want %d", params.PageSize, DefaultPageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("PageToken = %q, want empty", params.PageToken)
	}
}

func TestParseClampsPageSize(t *testing.T) {
	values := url.Values{"page_size": []string{"500"}}
	params, err := Parse(values, Options{MaxPageSize: 25})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 25 {
		t.Fatalf("PageSize = %d, want 25", params.PageSize)
	}
}

func TestParseRejectsBadPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{"page_size": []string{raw}}
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("page_size=%q: err = %v, want ErrInvalidPageSize", raw, err)
		}
	}
}

func TestParseRoundTripsToken(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2026-05-01", "order-9"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	values := url.Values{"page_token": []string{token}}
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("PageToken = %q, want %q", params.PageToken, token)
	}
	if len(params.Cursor.StartAfter) != 2 {
		t.Fatalf("Cursor.StartAfter = %v, want two values", params.Cursor.StartAfter)
	}
}

func TestParseRejectsGarbledToken(t *testing.T) {
	values := url.Values{"page_token": []string{"%%%not-base64%%%"}}
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("err = %v, want ErrInvalidPageToken", err)
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/admin/orders?page_size=10", nil)
	params, err := FromRequest(r, Options{MaxPageSize: 50})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != 10 {
		t.Fatalf("PageSize = %d, want 10", params.PageSize)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty for empty cursor", token)
	}
}

func TestDecodeTokenEmpty(t *testing.T) {
	cursor, err := DecodeToken("   ")
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(cursor.StartAfter) != 0 || len(cursor.StartAt) != 0 {
		t.Fatalf("cursor = %+v, want zero value", cursor)
	}
}

func TestDecodeTokenInvalidJSON(t *testing.T) {
	if _, err := DecodeToken("bm90LWpzb24"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("err = %v, want ErrInvalidPageToken", err)
	}
}
