package providers

import (
	"testing"

	"google.golang.org/genai"
)

func TestGeminiText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{
			name: "concatenates parts of first candidate",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "world"}}}},
					{Content: &genai.Content{Parts: []*genai.Part{{Text: "ignored"}}}},
				},
			},
			want: "Hello world",
		},
		{
			name: "skips candidates without content",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{},
					{Content: &genai.Content{Parts: []*genai.Part{{Text: "fallback"}}}},
				},
			},
			want: "fallback",
		},
		{
			name: "no candidates",
			resp: &genai.GenerateContentResponse{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geminiText(tt.resp); got != tt.want {
				t.Errorf("geminiText = %q, want %q", got, tt.want)
			}
		})
	}
}
