package genai

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateResponse_Parsing(t *testing.T) {
	jsonData := `{
    "candidates": [
        {
            "content": {
                "role": "model",
                "parts": [
                    {"text": "Nice work on multiplication! "},
                    {"text": "Try some division next."}
                ]
            },
            "finishReason": "STOP"
        }
    ]
}`

	var resp GenerateResponse
	err := json.Unmarshal([]byte(jsonData), &resp)
	assert.NoError(t, err)

	assert.Len(t, resp.Candidates, 1)
	assert.Equal(t, "STOP", resp.Candidates[0].FinishReason)
	assert.Equal(t, "Nice work on multiplication! Try some division next.", resp.Text())
}

func TestGenerateResponse_Empty(t *testing.T) {
	var resp GenerateResponse
	assert.NoError(t, json.Unmarshal([]byte(`{"candidates": []}`), &resp))
	assert.Equal(t, "", resp.Text())
}

func TestBuildRequest(t *testing.T) {
	c := New(DefaultConfig("test-key"), nil)

	req := c.buildRequest("be encouraging", []Message{
		{Role: "user", Text: "hello"},
		{Role: "model", Text: "hi"},
		{Role: "weird", Text: "what"},
	}, "how am I doing?")

	assert.NotNil(t, req.SystemInstruction)
	assert.Equal(t, "be encouraging", req.SystemInstruction.Parts[0].Text)
	assert.Len(t, req.Contents, 4)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "model", req.Contents[1].Role)
	// Unknown roles collapse to user rather than being sent upstream.
	assert.Equal(t, "user", req.Contents[2].Role)
	assert.Equal(t, "how am I doing?", req.Contents[3].Parts[0].Text)
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(60)

	for i := 0; i < 60; i++ {
		assert.True(t, rl.TryAcquire(), "token %d", i)
	}
	assert.False(t, rl.TryAcquire(), "bucket must be empty after the burst")
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(1)
	assert.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
