package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-openclaw-autoapply/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseResume() *models.Resume {
	return &models.Resume{
		PersonalInformation: models.PersonalInformation{FullName: "Ada Lovelace", JobTitle: "Fullstack Developer"},
		Summary:             "Builds things.",
		Skills:              []string{"Go", "React", "PostgreSQL"},
	}
}

func TestTailorResume(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		content := "```json\n{\"personal_information\": {\"full_name\": \"Ada Lovelace\", \"job_title\": \"Backend Developer\"}, \"summary\": \"Go backend engineer.\", \"skills\": [\"Go\", \"PostgreSQL\"]}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	defer srv.Close()

	client := NewGroqClient("secret", "", WithEndpoint(srv.URL))
	tailored, err := client.TailorResume(context.Background(), baseResume(), "Backend Go role")
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "Backend Go role")
	assert.Contains(t, got.Messages[1].Content, `"Fullstack Developer"`)

	assert.Equal(t, "Backend Developer", tailored.PersonalInformation.JobTitle)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, tailored.Skills)
}

func TestTailorResumeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"http error", http.StatusTooManyRequests, `{"error": {"message": "rate limited"}}`},
		{"api error", http.StatusOK, `{"error": {"message": "model overloaded"}}`},
		{"no choices", http.StatusOK, `{"choices": []}`},
		{"not json", http.StatusOK, `{"choices": [{"message": {"content": "Sure! Here is your resume"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			_, err := NewGroqClient("k", "m", WithEndpoint(srv.URL)).TailorResume(context.Background(), baseResume(), "jd")
			assert.Error(t, err)
		})
	}

	_, err := NewGroqClient("k", "m").TailorResume(context.Background(), nil, "jd")
	assert.Error(t, err)
}

func TestCleanMarkdownJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanMarkdownJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanMarkdownJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanMarkdownJSON("  {\"a\":1}  "))
}
