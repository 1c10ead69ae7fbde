package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioKey(t *testing.T) {
	key := AudioKey("owner-1", "rec-1", "standup.mp3")
	assert.Equal(t, "audio/owner-1/rec-1.mp3", key)

	// unknown extension falls back to webm
	key = AudioKey("owner-1", "rec-2", "capture.bin")
	assert.Equal(t, "audio/owner-1/rec-2.webm", key)

	key = AudioKey("owner-1", "rec-3", "noextension")
	assert.Equal(t, "audio/owner-1/rec-3.webm", key)
}

func TestValidateAudioFileType(t *testing.T) {
	assert.True(t, ValidateAudioFileType("audio/webm", "take.webm"))
	assert.True(t, ValidateAudioFileType("", "take.mp3"))
	assert.True(t, ValidateAudioFileType("audio/mpeg", ""))
	assert.True(t, ValidateAudioFileType("AUDIO/WAV", "x.wav"))

	assert.False(t, ValidateAudioFileType("video/mp4", "movie.mp4"))
	assert.False(t, ValidateAudioFileType("", "document.pdf"))
	assert.False(t, ValidateAudioFileType("", ""))
}

func TestContentTypeForFilename(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeForFilename("a.mp3"))
	assert.Equal(t, "audio/webm", ContentTypeForFilename("a.webm"))
	assert.Equal(t, "application/octet-stream", ContentTypeForFilename("a.txt"))
}
