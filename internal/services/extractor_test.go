package services

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractMainText(t *testing.T) {
	body := longText("nội dung")

	tests := []struct {
		name     string
		html     string
		min, max int
		want     func(string) bool
	}{
		{
			name: "site container wins and noise is dropped",
			html: articlePage(body),
			min:  40, max: 5000,
			want: func(got string) bool {
				return got == body
			},
		},
		{
			name: "short container falls through to the document",
			html: `<html><body><div class="cms-body">ngắn</div><p>phần còn lại</p></body></html>`,
			min:  40, max: 5000,
			want: func(got string) bool {
				return got == "ngắn phần còn lại"
			},
		},
		{
			name: "truncated by runes",
			html: articlePage(body),
			min:  10, max: 12,
			want: func(got string) bool {
				return utf8.RuneCountInString(got) == 12 && strings.HasPrefix(body, got)
			},
		},
		{
			name: "whitespace collapsed across nodes",
			html: "<html><body><article><h1> Tiêu   đề </h1>\n\n<p>Đoạn\tmột</p><p>Đoạn hai</p></article></body></html>",
			min:  5, max: 0,
			want: func(got string) bool {
				return got == "Tiêu đề Đoạn một Đoạn hai"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMainText(tt.html, tt.min, tt.max)
			if !tt.want(got) {
				t.Errorf("ExtractMainText() = %q", got)
			}
		})
	}
}
