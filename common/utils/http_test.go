package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LexiconIndonesia/media-render-service/common/models"
)

func TestParsePage(t *testing.T) {
	tests := []struct {
		query               string
		page, limit, offset int
	}{
		{"", 1, 20, 0},
		{"?page=3&limit=10", 3, 10, 20},
		{"?page=-1&limit=500", 1, 100, 0},
		{"?page=abc", 1, 20, 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/jobs"+tt.query, nil)
		page, limit, offset := ParsePage(r, 20, 100)
		if page != tt.page || limit != tt.limit || offset != tt.offset {
			t.Errorf("%q: got %d/%d/%d, want %d/%d/%d", tt.query, page, limit, offset, tt.page, tt.limit, tt.offset)
		}
	}
}

func TestWritePagination(t *testing.T) {
	rec := httptest.NewRecorder()
	WritePagination(rec, http.StatusOK, []string{"a"}, 2, 10, 25)

	var body models.BasePaginationResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Meta.LastPage != 3 || body.Meta.CurrentPage != 2 || body.Meta.Total != 25 {
		t.Errorf("Unexpected meta %+v", body.Meta)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, "job not found")

	if rec.Code != http.StatusNotFound || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("Unexpected response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	var body models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Not Found" || body.Msg != "job not found" {
		t.Errorf("Unexpected body %+v", body)
	}
}
