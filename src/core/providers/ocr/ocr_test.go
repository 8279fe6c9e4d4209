package ocr

import (
	"testing"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"完整结果", `{"responses":[{"fullTextAnnotation":{"text":"TOTAL 9.99"}}]}`, "TOTAL 9.99", false},
		{"回退到textAnnotations", `{"responses":[{"textAnnotations":[{"description":"MILK"},{"description":"x"}]}]}`, "MILK", false},
		{"空响应", `{"responses":[{}]}`, "", false},
		{"缺少responses", `{}`, "", false},
		{"非JSON", `<html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapTextRoundTrip(t *testing.T) {
	raw, err := WrapText("BREAD 2.00")
	if err != nil {
		t.Fatalf("WrapText: %v", err)
	}
	got, err := ExtractText(raw)
	if err != nil || got != "BREAD 2.00" {
		t.Errorf("ExtractText(WrapText) = %q, %v", got, err)
	}
}
