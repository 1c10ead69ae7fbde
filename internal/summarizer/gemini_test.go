package summarizer

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeWithoutKeys(t *testing.T) {
	c := NewClient(nil, "gemini-2.0-flash", nil)

	_, err := c.Summarize(context.Background(), "transcript", "template")
	require.Error(t, err)

	var sumErr *Error
	require.ErrorAs(t, err, &sumErr)
	assert.Contains(t, err.Error(), "no API key")
}

func TestSummaryPromptIncludesBothInputs(t *testing.T) {
	assert.Contains(t, summaryPrompt, "Transcript:")
	assert.Contains(t, summaryPrompt, "Template:")
	assert.Equal(t, 2, strings.Count(summaryPrompt, "%s"))
}

func TestRotateKeyWraps(t *testing.T) {
	c := NewClient([]string{"a", "b", "c"}, "m", nil)
	idx, key := c.key()
	assert.Equal(t, 0, idx)
	assert.Equal(t, "a", key)
	c.rotateKey()
	idx, key = c.key()
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", key)
	c.rotateKey()
	c.rotateKey()
	idx, _ = c.key()
	assert.Equal(t, 0, idx)
}

func TestKeyRotationConcurrent(t *testing.T) {
	c := NewClient([]string{"a", "b", "c"}, "m", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.rotateKey()
				_, _ = c.key()
			}
		}()
	}
	wg.Wait()

	idx, _ := c.key()
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, len(c.apiKeys))
}
